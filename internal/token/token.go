// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package token issues, validates, and single-use-consumes the
// short-lived secrets that prove a requester received an out-of-band
// message.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/samber/oops"

	"github.com/resetgate/resetgate/internal/directory"
)

// Token value configuration.
const (
	// TokenBytes is the entropy of each token value. 32 bytes renders as
	// 64 hex characters.
	TokenBytes = 32

	// DefaultTTL is used when the issuer is given a non-positive TTL.
	DefaultTTL = 15 * time.Minute
)

// Token is a single-use secret bound to one directory identity.
type Token struct {
	Value    string
	Identity directory.Identity
	IssuedAt time.Time
	TTL      time.Duration
	Consumed bool
}

// ExpiresAt returns the instant after which the token is unusable.
func (t *Token) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.TTL)
}

// IsExpired returns true if the token is past its TTL.
func (t *Token) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the token would be expired at the given
// time. Useful for testing with deterministic time values.
func (t *Token) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt())
}

// generateValue creates a new random token value.
func generateValue() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
