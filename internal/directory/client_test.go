// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package directory

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn implements conn with injectable behavior per operation.
type fakeConn struct {
	bindFunc   func(username, password string) error
	searchFunc func(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	modifyFunc func(req *ldap.ModifyRequest) error

	timeout  time.Duration
	closed   bool
	closeErr error
}

func (f *fakeConn) Bind(username, password string) error {
	if f.bindFunc != nil {
		return f.bindFunc(username, password)
	}
	return nil
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if f.searchFunc != nil {
		return f.searchFunc(req)
	}
	return &ldap.SearchResult{}, nil
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	if f.modifyFunc != nil {
		return f.modifyFunc(req)
	}
	return nil
}

func (f *fakeConn) SetTimeout(timeout time.Duration) { f.timeout = timeout }

func (f *fakeConn) Close() error {
	f.closed = true
	return f.closeErr
}

func testConfig() Config {
	return Config{
		URL:             "ldaps://dc01.example.com:636",
		Domain:          "example.com",
		ServiceUser:     "svc-reset",
		ServicePassword: "secret",
		Timeout:         time.Second,
	}
}

func newTestConnector(t *testing.T, fc *fakeConn) *Connector {
	t.Helper()
	c, err := NewConnector(testConfig())
	require.NoError(t, err)
	c.dial = func(_ context.Context) (conn, error) { return fc, nil }
	return c
}

func searchEntry(attrs map[string]string) *ldap.Entry {
	entry := &ldap.Entry{DN: attrs["distinguishedName"]}
	for name, value := range attrs {
		entry.Attributes = append(entry.Attributes, &ldap.EntryAttribute{
			Name:   name,
			Values: []string{value},
		})
	}
	return entry
}

func TestNewConnector_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing URL", mutate: func(c *Config) { c.URL = "" }},
		{name: "missing domain", mutate: func(c *Config) { c.Domain = "" }},
		{name: "missing service user", mutate: func(c *Config) { c.ServiceUser = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			c, err := NewConnector(cfg)
			require.Error(t, err)
			assert.Nil(t, c)
		})
	}

	t.Run("nil logger", func(t *testing.T) {
		c, err := NewConnectorWithLogger(testConfig(), nil)
		require.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("unreadable CA bundle", func(t *testing.T) {
		cfg := testConfig()
		cfg.CAFile = filepath.Join(t.TempDir(), "absent.pem")
		c, err := NewConnector(cfg)
		require.Error(t, err)
		assert.Nil(t, c)
	})
}

func TestConnector_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves identity from first entry", func(t *testing.T) {
		var gotFilter, gotBase string
		fc := &fakeConn{
			searchFunc: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
				gotFilter = req.Filter
				gotBase = req.BaseDN
				return &ldap.SearchResult{Entries: []*ldap.Entry{
					searchEntry(map[string]string{
						"distinguishedName": "CN=Alice,DC=example,DC=com",
						"userPrincipalName": "alice@example.com",
						"name":              "Alice",
						"mail":              "alice@example.com",
						"telephoneNumber":   "555-0100",
					}),
				}}, nil
			},
		}
		c := newTestConnector(t, fc)

		identity, err := c.Lookup(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "CN=Alice,DC=example,DC=com", identity.DN)
		assert.Equal(t, "alice@example.com", identity.PrincipalName)
		assert.Equal(t, "Alice", identity.Name)
		assert.Equal(t, "alice@example.com", identity.Mail)
		assert.Equal(t, "555-0100", identity.TelephoneNumber)

		assert.Equal(t, "(&(userPrincipalName=alice@example.com)(objectClass=user))", gotFilter)
		assert.Equal(t, "DC=example,DC=com", gotBase)
		assert.True(t, fc.closed, "connection must be released")
		assert.Equal(t, time.Second, fc.timeout)
	})

	t.Run("escapes filter metacharacters in username", func(t *testing.T) {
		var gotFilter string
		fc := &fakeConn{
			searchFunc: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
				gotFilter = req.Filter
				return &ldap.SearchResult{}, nil
			},
		}
		c := newTestConnector(t, fc)

		_, err := c.Lookup(ctx, "al*ce)(")
		require.ErrorIs(t, err, ErrNotFound)
		assert.NotContains(t, gotFilter, "al*ce)(")
	})

	t.Run("zero matches returns ErrNotFound", func(t *testing.T) {
		fc := &fakeConn{}
		c := newTestConnector(t, fc)

		identity, err := c.Lookup(ctx, "nobody")
		require.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, identity)
		assert.True(t, fc.closed)
	})

	t.Run("multiple matches returns first", func(t *testing.T) {
		fc := &fakeConn{
			searchFunc: func(_ *ldap.SearchRequest) (*ldap.SearchResult, error) {
				return &ldap.SearchResult{Entries: []*ldap.Entry{
					searchEntry(map[string]string{
						"distinguishedName": "CN=First,DC=example,DC=com",
						"name":              "First",
					}),
					searchEntry(map[string]string{
						"distinguishedName": "CN=Second,DC=example,DC=com",
						"name":              "Second",
					}),
				}}, nil
			},
		}
		c := newTestConnector(t, fc)

		identity, err := c.Lookup(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "CN=First,DC=example,DC=com", identity.DN)
	})

	t.Run("search failure maps to ErrUnavailable", func(t *testing.T) {
		fc := &fakeConn{
			searchFunc: func(_ *ldap.SearchRequest) (*ldap.SearchResult, error) {
				return nil, errors.New("connection reset")
			},
		}
		c := newTestConnector(t, fc)

		_, err := c.Lookup(ctx, "alice")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.True(t, fc.closed, "connection must be released on error")
	})

	t.Run("bind failure maps to ErrUnavailable and releases", func(t *testing.T) {
		fc := &fakeConn{
			bindFunc: func(_, _ string) error { return errors.New("invalid credentials") },
		}
		c := newTestConnector(t, fc)

		_, err := c.Lookup(ctx, "alice")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.True(t, fc.closed)
	})

	t.Run("dial failure maps to ErrUnavailable after retries", func(t *testing.T) {
		dials := 0
		c, err := NewConnector(testConfig())
		require.NoError(t, err)
		c.dial = func(_ context.Context) (conn, error) {
			dials++
			return nil, errors.New("connection refused")
		}

		_, err = c.Lookup(ctx, "alice")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, dialRetries+1, dials)
	})

	t.Run("binds with qualified service principal", func(t *testing.T) {
		var gotPrincipal string
		fc := &fakeConn{
			bindFunc: func(username, _ string) error {
				gotPrincipal = username
				return nil
			},
		}
		c := newTestConnector(t, fc)

		_, _ = c.Lookup(ctx, "alice")
		assert.Equal(t, "svc-reset@example.com", gotPrincipal)
	})
}

func TestConnector_ChangePassword(t *testing.T) {
	ctx := context.Background()
	dn := "CN=Alice,DC=example,DC=com"

	t.Run("replaces unicodePwd with encoded password", func(t *testing.T) {
		var gotReq *ldap.ModifyRequest
		fc := &fakeConn{
			modifyFunc: func(req *ldap.ModifyRequest) error {
				gotReq = req
				return nil
			},
		}
		c := newTestConnector(t, fc)

		err := c.ChangePassword(ctx, dn, "Abc123!")
		require.NoError(t, err)
		require.NotNil(t, gotReq)
		assert.Equal(t, dn, gotReq.DN)
		require.Len(t, gotReq.Changes, 1)

		change := gotReq.Changes[0]
		assert.Equal(t, uint(ldap.ReplaceAttribute), change.Operation)
		assert.Equal(t, "unicodePwd", change.Modification.Type)

		expected, err := encodePassword("Abc123!")
		require.NoError(t, err)
		require.Len(t, change.Modification.Vals, 1)
		assert.Equal(t, string(expected), change.Modification.Vals[0])
		assert.True(t, fc.closed)
	})

	t.Run("unwillingToPerform maps to ErrPasswordPolicy", func(t *testing.T) {
		fc := &fakeConn{
			modifyFunc: func(_ *ldap.ModifyRequest) error {
				return ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("0000052D"))
			},
		}
		c := newTestConnector(t, fc)

		err := c.ChangePassword(ctx, dn, "weak")
		require.ErrorIs(t, err, ErrPasswordPolicy)
		assert.NotErrorIs(t, err, ErrUnavailable)
	})

	t.Run("constraintViolation maps to ErrPasswordPolicy", func(t *testing.T) {
		fc := &fakeConn{
			modifyFunc: func(_ *ldap.ModifyRequest) error {
				return ldap.NewError(ldap.LDAPResultConstraintViolation, errors.New("constraint"))
			},
		}
		c := newTestConnector(t, fc)

		err := c.ChangePassword(ctx, dn, "weak")
		require.ErrorIs(t, err, ErrPasswordPolicy)
	})

	t.Run("other modify failures map to ErrUnavailable", func(t *testing.T) {
		fc := &fakeConn{
			modifyFunc: func(_ *ldap.ModifyRequest) error {
				return ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied"))
			},
		}
		c := newTestConnector(t, fc)

		err := c.ChangePassword(ctx, dn, "Abc123!")
		require.ErrorIs(t, err, ErrUnavailable)
		assert.NotErrorIs(t, err, ErrPasswordPolicy)
	})

	t.Run("close failure is logged, not returned", func(t *testing.T) {
		fc := &fakeConn{closeErr: errors.New("already closed")}
		c, err := NewConnectorWithLogger(testConfig(), slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		c.dial = func(_ context.Context) (conn, error) { return fc, nil }

		err = c.ChangePassword(ctx, dn, "Abc123!")
		require.NoError(t, err)
		assert.True(t, fc.closed)
	})
}
