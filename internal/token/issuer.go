// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package token

import (
	"log/slog"
	"sync"
	"time"

	"github.com/resetgate/resetgate/internal/directory"
)

// sweepInterval is how often the optional background sweeper removes
// expired entries. Validation never depends on the sweep; it only
// bounds memory.
const sweepInterval = time.Minute

// Issuer is the shared token store. It is safe for concurrent use; a
// single mutex guards both indexes so that overwrite-on-reissue and
// validate-then-consume cannot race. All operations are non-blocking,
// so callers never hold the lock across network calls.
type Issuer struct {
	logger *slog.Logger

	mu      sync.Mutex
	byDN    map[string]*Token // live token per identity DN
	byValue map[string]string // token value -> identity DN

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewIssuer creates an Issuer with a no-op logger.
func NewIssuer() *Issuer {
	return NewIssuerWithLogger(slog.New(slog.DiscardHandler))
}

// NewIssuerWithLogger creates an Issuer with the provided logger. A nil
// logger falls back to a no-op one.
func NewIssuerWithLogger(logger *slog.Logger) *Issuer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Issuer{
		logger:  logger,
		byDN:    make(map[string]*Token),
		byValue: make(map[string]string),
		done:    make(chan struct{}),
	}
}

// Issue generates a new token for the identity. Any prior token for the
// same identity becomes permanently unusable, expired or not.
func (i *Issuer) Issue(identity directory.Identity, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	value, err := generateValue()
	if err != nil {
		return nil, err
	}

	tok := &Token{
		Value:    value,
		Identity: identity,
		IssuedAt: time.Now(),
		TTL:      ttl,
	}

	i.mu.Lock()
	if prior, ok := i.byDN[identity.DN]; ok {
		delete(i.byValue, prior.Value)
	}
	i.byDN[identity.DN] = tok
	i.byValue[value] = identity.DN
	i.mu.Unlock()

	i.logger.Debug("token issued",
		"principal", identity.PrincipalName,
		"ttl", ttl)

	copied := *tok
	return &copied, nil
}

// Validate looks a token up by value. It returns nil for absent,
// expired, or consumed tokens and does not mutate consumed state:
// calling code decides when to consume. Expired entries are removed as
// they are seen.
func (i *Issuer) Validate(value string) *Token {
	if value == "" {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	tok := i.lookupLocked(value)
	if tok == nil || tok.Consumed {
		return nil
	}

	copied := *tok
	return &copied
}

// Consume atomically marks a still-valid token consumed. It returns
// false if the token is absent, expired, or already consumed; failure
// is a no-op.
func (i *Issuer) Consume(value string) bool {
	if value == "" {
		return false
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	tok := i.lookupLocked(value)
	if tok == nil || tok.Consumed {
		return false
	}

	tok.Consumed = true
	i.logger.Debug("token consumed", "principal", tok.Identity.PrincipalName)
	return true
}

// lookupLocked returns the live entry for value, deleting it when
// expired. Callers must hold i.mu.
func (i *Issuer) lookupLocked(value string) *Token {
	dn, ok := i.byValue[value]
	if !ok {
		return nil
	}

	tok, ok := i.byDN[dn]
	if !ok || tok.Value != value {
		// The value index points at a token that has since been
		// overwritten by a reissue.
		delete(i.byValue, value)
		return nil
	}

	if tok.IsExpired() {
		delete(i.byDN, dn)
		delete(i.byValue, value)
		return nil
	}

	return tok
}

// StartSweeper launches a background goroutine that periodically drops
// expired entries to bound memory. Stop shuts it down.
func (i *Issuer) StartSweeper() {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-i.done:
				return
			case <-ticker.C:
				removed := i.sweep(time.Now())
				if removed > 0 {
					i.logger.Debug("swept expired tokens", "removed", removed)
				}
			}
		}
	}()
}

// Stop terminates the sweeper, if running, and waits for it to exit.
// Safe to call multiple times and without StartSweeper.
func (i *Issuer) Stop() {
	i.once.Do(func() { close(i.done) })
	i.wg.Wait()
}

// sweep removes entries expired at the given instant and returns how
// many were dropped.
func (i *Issuer) sweep(now time.Time) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	removed := 0
	for dn, tok := range i.byDN {
		if tok.IsExpiredAt(now) {
			delete(i.byDN, dn)
			delete(i.byValue, tok.Value)
			removed++
		}
	}
	return removed
}
