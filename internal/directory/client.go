// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/resetgate/resetgate/internal/tls"
)

// Dial retry configuration. Binds are never retried; only transient
// transport failures during dial are.
const (
	dialRetries = 2
	dialBackoff = 250 * time.Millisecond

	defaultTimeout = 10 * time.Second
)

// Config holds the connection settings for a directory endpoint.
type Config struct {
	// URL is the LDAP endpoint, e.g. "ldaps://dc01.example.com:636".
	URL string

	// Domain qualifies bare usernames into principal names and derives
	// the search base.
	Domain string

	// ServiceUser and ServicePassword are the bind credentials. The bind
	// principal is "<ServiceUser>@<Domain>".
	ServiceUser     string
	ServicePassword string

	// Timeout bounds each network operation. Defaults to 10s.
	Timeout time.Duration

	// CAFile optionally points to a PEM bundle trusted for ldaps://
	// endpoints, for directories signed by a private CA.
	CAFile string

	// InsecureSkipVerify disables certificate verification. Lab setups
	// only.
	InsecureSkipVerify bool
}

// Validate checks that the configuration is complete.
func (c Config) Validate() error {
	if c.URL == "" {
		return oops.Errorf("directory URL is required")
	}
	if c.Domain == "" {
		return oops.Errorf("directory domain is required")
	}
	if c.ServiceUser == "" {
		return oops.Errorf("directory service user is required")
	}
	return nil
}

// conn is the subset of *ldap.Conn the connector uses. Fakes implement
// it in tests.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Modify(req *ldap.ModifyRequest) error
	SetTimeout(timeout time.Duration)
	Close() error
}

// Connector resolves usernames to identities and replaces directory
// passwords. Each operation acquires its own connection and releases it
// on every exit path; close failures are logged, never returned.
type Connector struct {
	cfg    Config
	logger *slog.Logger
	dial   func(ctx context.Context) (conn, error)
}

// NewConnector creates a Connector with a no-op logger.
func NewConnector(cfg Config) (*Connector, error) {
	return NewConnectorWithLogger(cfg, slog.New(slog.DiscardHandler))
}

// NewConnectorWithLogger creates a Connector with the provided logger.
func NewConnectorWithLogger(cfg Config, logger *slog.Logger) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	tlsCfg, err := tls.ClientConfig(cfg.CAFile, cfg.InsecureSkipVerify)
	if err != nil {
		return nil, oops.Code("DIRECTORY_TLS_CONFIG").
			With("ca_file", cfg.CAFile).
			Wrap(err)
	}

	c := &Connector{
		cfg:    cfg,
		logger: logger,
	}
	c.dial = func(_ context.Context) (conn, error) {
		opts := []ldap.DialOpt{}
		if tlsCfg != nil {
			opts = append(opts, ldap.DialWithTLSConfig(tlsCfg))
		}
		raw, err := ldap.DialURL(cfg.URL, opts...)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	return c, nil
}

// Lookup resolves a bare username to exactly one directory identity via
// a subtree search on principal name and object class. Returns
// ErrNotFound on zero matches. On more than one match the first entry
// wins; this mirrors the directory's enumeration order and is
// implementation-defined.
func (c *Connector) Lookup(ctx context.Context, username string) (*Identity, error) {
	connection, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.release(connection)

	filter := fmt.Sprintf(
		"(&(userPrincipalName=%s@%s)(objectClass=user))",
		ldap.EscapeFilter(username),
		ldap.EscapeFilter(c.cfg.Domain),
	)
	req := ldap.NewSearchRequest(
		BaseDN(c.cfg.Domain),
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		userAttributes,
		nil,
	)

	result, err := connection.Search(req)
	if err != nil {
		return nil, oops.Code("DIRECTORY_SEARCH_FAILED").
			With("filter", filter).
			Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	if len(result.Entries) == 0 {
		c.logger.Debug("no directory entry found", "username", username)
		return nil, ErrNotFound
	}
	if len(result.Entries) > 1 {
		c.logger.Warn("multiple directory entries matched, using first",
			"username", username,
			"matches", len(result.Entries))
	}

	entry := result.Entries[0]
	identity := &Identity{
		DN:              entry.GetAttributeValue("distinguishedName"),
		PrincipalName:   entry.GetAttributeValue("userPrincipalName"),
		Name:            entry.GetAttributeValue("name"),
		Mail:            entry.GetAttributeValue("mail"),
		TelephoneNumber: entry.GetAttributeValue("telephoneNumber"),
	}
	if identity.DN == "" {
		identity.DN = entry.DN
	}

	c.logger.Debug("resolved directory identity", "name", identity.Name)
	return identity, nil
}

// ChangePassword replaces the password attribute of the identity at dn.
// Returns ErrPasswordPolicy when the directory rejects the password for
// complexity reasons and ErrUnavailable-wrapped errors for everything
// else.
func (c *Connector) ChangePassword(ctx context.Context, dn, newPassword string) error {
	connection, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer c.release(connection)

	encoded, err := encodePassword(newPassword)
	if err != nil {
		return err
	}

	req := ldap.NewModifyRequest(dn, nil)
	req.Replace("unicodePwd", []string{string(encoded)})

	if err := connection.Modify(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultUnwillingToPerform) ||
			ldap.IsErrorWithCode(err, ldap.LDAPResultConstraintViolation) {
			c.logger.Debug("password did not meet directory requirements", "dn", dn)
			return ErrPasswordPolicy
		}
		return oops.Code("DIRECTORY_MODIFY_FAILED").
			With("dn", dn).
			Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	c.logger.Info("password replaced", "dn", dn)
	return nil
}

// connect dials with bounded retries and binds the service account.
func (c *Connector) connect(ctx context.Context) (conn, error) {
	var connection conn
	backoff := retry.WithMaxRetries(dialRetries, retry.NewExponential(dialBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		raw, dialErr := c.dial(ctx)
		if dialErr != nil {
			return retry.RetryableError(dialErr)
		}
		connection = raw
		return nil
	})
	if err != nil {
		return nil, oops.Code("DIRECTORY_DIAL_FAILED").
			With("url", c.cfg.URL).
			Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	connection.SetTimeout(c.cfg.Timeout)

	principal := fmt.Sprintf("%s@%s", c.cfg.ServiceUser, c.cfg.Domain)
	if err := connection.Bind(principal, c.cfg.ServicePassword); err != nil {
		c.release(connection)
		return nil, oops.Code("DIRECTORY_BIND_FAILED").
			With("principal", principal).
			Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	return connection, nil
}

// release closes the connection. Close failures are logged and
// swallowed so they never mask the operation's own result.
func (c *Connector) release(connection conn) {
	if err := connection.Close(); err != nil {
		c.logger.Error("closing directory connection", "error", err)
	}
}
