// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package config loads and validates the resetgate configuration from
// a YAML file, RESETGATE_* environment variables, and command-line
// flags, in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// envPrefix namespaces environment overrides. A double underscore
// separates nesting levels so single underscores survive in key names,
// e.g. RESETGATE_LDAP__SERVICE_USER sets ldap.service_user.
const envPrefix = "RESETGATE_"

// Sender kinds.
const (
	SenderConsole = "console"
	SenderEmail   = "email"
)

// Config is the full resetgate configuration.
type Config struct {
	LDAP    LDAPConfig    `koanf:"ldap"`
	Token   TokenConfig   `koanf:"token"`
	Sender  SenderConfig  `koanf:"sender"`
	SMTP    SMTPConfig    `koanf:"smtp"`
	Captcha CaptchaConfig `koanf:"captcha"`
	Listen  ListenConfig  `koanf:"listen"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// LDAPConfig holds the directory endpoint settings.
type LDAPConfig struct {
	URL             string        `koanf:"url"`
	Domain          string        `koanf:"domain"`
	ServiceUser     string        `koanf:"service_user"`
	ServicePassword string        `koanf:"service_password"`
	Timeout         time.Duration `koanf:"timeout"`

	// CAFile points to a PEM bundle trusted for ldaps:// endpoints
	// signed by a private CA. Empty uses the system roots.
	CAFile string `koanf:"ca_file"`

	// InsecureSkipVerify disables certificate verification. Lab setups
	// only.
	InsecureSkipVerify bool `koanf:"insecure_skip_verify"`
}

// TokenConfig holds token issuance settings.
type TokenConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

// SenderConfig selects the delivery channel.
type SenderConfig struct {
	Kind string `koanf:"kind"`
}

// SMTPConfig holds the e-mail channel settings.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// CaptchaConfig holds the human-verification settings.
type CaptchaConfig struct {
	Enabled   bool   `koanf:"enabled"`
	VerifyURL string `koanf:"verify_url"`
	Secret    string `koanf:"secret"`
}

// ListenConfig holds the web API listen settings.
type ListenConfig struct {
	Addr           string        `koanf:"addr"`
	SessionIdleTTL time.Duration `koanf:"session_idle_ttl"`
}

// MetricsConfig holds the observability listen settings. An empty
// address disables the endpoint.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		LDAP:    LDAPConfig{Timeout: 10 * time.Second},
		Token:   TokenConfig{TTL: 15 * time.Minute},
		Sender:  SenderConfig{Kind: SenderEmail},
		Listen:  ListenConfig{Addr: ":8080", SessionIdleTTL: 30 * time.Minute},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json"},
	}
}

// Load builds the configuration. path may be empty (no file); flags may
// be nil (no flag overrides).
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps RESETGATE_LDAP__SERVICE_USER to ldap.service_user.
func envKey(name string) string {
	trimmed := strings.ToLower(strings.TrimPrefix(name, envPrefix))
	return strings.ReplaceAll(trimmed, "__", ".")
}

// Validate checks the configuration for startup. Malformed
// configuration is the only condition that aborts the process.
func (c Config) Validate() error {
	if c.LDAP.URL == "" {
		return oops.Errorf("ldap.url is required")
	}
	if c.LDAP.Domain == "" {
		return oops.Errorf("ldap.domain is required")
	}
	if c.LDAP.ServiceUser == "" {
		return oops.Errorf("ldap.service_user is required")
	}

	switch c.Sender.Kind {
	case SenderConsole:
	case SenderEmail:
		if c.SMTP.Host == "" {
			return oops.Errorf("smtp.host is required for the email sender")
		}
		if c.SMTP.From == "" {
			return oops.Errorf("smtp.from is required for the email sender")
		}
	default:
		return oops.Errorf("sender.kind must be %q or %q, got %q",
			SenderConsole, SenderEmail, c.Sender.Kind)
	}

	if c.Captcha.Enabled && c.Captcha.VerifyURL == "" {
		return oops.Errorf("captcha.verify_url is required when captcha is enabled")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}

	if c.Listen.Addr == "" {
		return oops.Errorf("listen.addr is required")
	}
	return nil
}
