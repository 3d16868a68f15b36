// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package flow drives a user through the request / verify / reset
// sequence. A Workflow is owned by exactly one session and has no
// internal locking; the token issuer is the only state shared across
// sessions.
package flow

import (
	"context"
	"time"

	"github.com/resetgate/resetgate/internal/directory"
	"github.com/resetgate/resetgate/internal/token"
)

// Stage identifies where a session is in the reset sequence.
type Stage int

// Workflow stages. There is no terminal stage: completion and "back"
// both return to StageRequestToken with session state cleared.
const (
	StageRequestToken Stage = iota
	StageUseToken
	StageSetPassword
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageRequestToken:
		return "request_token"
	case StageUseToken:
		return "use_token"
	case StageSetPassword:
		return "set_password"
	default:
		return "unknown"
	}
}

// Kind discriminates workflow outcomes at the presentation boundary.
// Directory-level detail never reaches the requester; lookup failures
// and unknown usernames collapse into KindRequestFailed.
type Kind int

// Outcome kinds.
const (
	KindOK Kind = iota
	KindNotVerified
	KindRequestFailed
	KindSenderIneligible
	KindDeliveryFailed
	KindTokenInvalid
	KindPasswordMismatch
	KindPasswordPolicy
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotVerified:
		return "not_verified"
	case KindRequestFailed:
		return "request_failed"
	case KindSenderIneligible:
		return "sender_ineligible"
	case KindDeliveryFailed:
		return "delivery_failed"
	case KindTokenInvalid:
		return "token_invalid"
	case KindPasswordMismatch:
		return "password_mismatch"
	case KindPasswordPolicy:
		return "password_policy"
	default:
		return "unknown"
	}
}

// Outcome is the discriminated result of a workflow operation.
type Outcome struct {
	OK      bool
	Kind    Kind
	Message string
	Stage   Stage
}

// Directory is the subset of the directory connector the workflow
// drives.
type Directory interface {
	// Lookup resolves a bare username to a directory identity.
	Lookup(ctx context.Context, username string) (*directory.Identity, error)

	// ChangePassword replaces the password of the identity at dn.
	ChangePassword(ctx context.Context, dn, newPassword string) error
}

// Issuer is the subset of the token issuer the workflow drives.
type Issuer interface {
	// Issue mints a token for the identity, invalidating any prior one.
	Issue(identity directory.Identity, ttl time.Duration) (*token.Token, error)

	// Validate returns the live token for value, or nil.
	Validate(value string) *token.Token

	// Consume marks a still-valid token consumed.
	Consume(value string) bool
}
