// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/resetgate/resetgate/internal/config"
	"github.com/resetgate/resetgate/internal/directory"
	"github.com/resetgate/resetgate/internal/flow"
	"github.com/resetgate/resetgate/internal/logging"
	"github.com/resetgate/resetgate/internal/observability"
	"github.com/resetgate/resetgate/internal/sender"
	"github.com/resetgate/resetgate/internal/token"
	"github.com/resetgate/resetgate/internal/web"
	"github.com/resetgate/resetgate/internal/xdg"
)

// shutdownTimeout bounds graceful shutdown of the HTTP servers.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the password reset service",
		Long: `Start the resetgate service: the reset API, the selected token
delivery channel, and the metrics endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	// Flag names mirror config keys so they override file and env.
	// Defaults match config.Default(): an untouched flag only fills a
	// key nothing else set.
	defaults := config.Default()
	cmd.Flags().String("listen.addr", defaults.Listen.Addr, "web API listen address")
	cmd.Flags().String("metrics.addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("sender.kind", defaults.Sender.Kind, "token delivery channel (console or email)")

	return cmd
}

// loadConfig resolves the configuration from the global --config flag,
// the environment, and the given flag set. Without --config, the XDG
// config file is used when present.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	path := configFile
	if path == "" {
		if candidate := xdg.DefaultConfigFile(); fileExists(candidate) {
			path = candidate
		}
	}
	return config.Load(path, flags)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// runServe wires the service together and blocks until a signal or a
// server failure.
func runServe(ctx context.Context, cfg config.Config) error {
	logging.SetDefault("resetgate", version, cfg.Log.Format)
	logger := slog.Default()

	connector, err := directory.NewConnectorWithLogger(directory.Config{
		URL:                cfg.LDAP.URL,
		Domain:             cfg.LDAP.Domain,
		ServiceUser:        cfg.LDAP.ServiceUser,
		ServicePassword:    cfg.LDAP.ServicePassword,
		Timeout:            cfg.LDAP.Timeout,
		CAFile:             cfg.LDAP.CAFile,
		InsecureSkipVerify: cfg.LDAP.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return err
	}

	issuer := token.NewIssuerWithLogger(logger)
	issuer.StartSweeper()
	defer issuer.Stop()

	tokenSender, err := buildSender(cfg, logger)
	if err != nil {
		return err
	}

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return err
	}

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsErrCh <-chan error

	if cfg.Metrics.Addr != "" {
		obsSrv := observability.NewServer(cfg.Metrics.Addr, ready.Load)
		obsErrCh, err = obsSrv.Start()
		if err != nil {
			return err
		}
		metrics = obsSrv.Metrics()
		defer stopServer(obsSrv.Stop, logger, "observability")
	}

	factory := func() (*flow.Workflow, error) {
		return flow.NewWorkflowWithLogger(connector, issuer, tokenSender, cfg.Token.TTL, logger)
	}

	webSrv, err := web.NewServer(web.Config{
		Addr:           cfg.Listen.Addr,
		SessionIdleTTL: cfg.Listen.SessionIdleTTL,
	}, factory, verifier, metrics, logger)
	if err != nil {
		return err
	}

	webErrCh, err := webSrv.Start()
	if err != nil {
		return err
	}
	defer stopServer(webSrv.Stop, logger, "web")
	ready.Store(true)

	logger.Info("resetgate started",
		"listen", webSrv.Addr(),
		"sender", cfg.Sender.Kind,
		"token_ttl", cfg.Token.TTL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		return nil
	case err := <-webErrCh:
		if err != nil {
			return oops.Code("WEB_SERVER_FAILED").Wrap(err)
		}
		return nil
	case err := <-obsErrCh:
		if err != nil {
			return oops.Code("OBSERVABILITY_SERVER_FAILED").Wrap(err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

// buildSender constructs the configured delivery channel.
func buildSender(cfg config.Config, logger *slog.Logger) (sender.TokenSender, error) {
	switch cfg.Sender.Kind {
	case config.SenderConsole:
		return sender.NewConsole(), nil
	case config.SenderEmail:
		return sender.NewEmailWithLogger(sender.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}, logger)
	default:
		return nil, oops.Errorf("unknown sender kind %q", cfg.Sender.Kind)
	}
}

// buildVerifier constructs the human-verification check. With captcha
// disabled every request counts as verified; the deployment is then
// expected to sit behind some other abuse control.
func buildVerifier(cfg config.Config, logger *slog.Logger) (web.Verifier, error) {
	if !cfg.Captcha.Enabled {
		return web.StaticVerifier{Result: true}, nil
	}
	return web.NewHTTPVerifier(cfg.Captcha.VerifyURL, cfg.Captcha.Secret, logger)
}

// stopServer shuts a server down with a bounded timeout, logging any
// failure.
func stopServer(stop func(context.Context) error, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Error("stopping server", "server", name, "error", err)
	}
}
