// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package sender defines the delivery-channel capability for reset
// tokens and its baseline implementations.
package sender

import (
	"context"

	"github.com/resetgate/resetgate/internal/directory"
)

// TokenSender delivers reset tokens over one out-of-band channel.
// Additional channels (SMS, push) are additional implementations;
// nothing else in the system knows the channel set.
type TokenSender interface {
	// Eligible reports whether the identity can receive tokens on this
	// channel. A non-nil error carries the user-facing ineligibility
	// reason.
	Eligible(identity *directory.Identity) error

	// Deliver sends the token value to the identity.
	Deliver(ctx context.Context, identity *directory.Identity, tokenValue string) error

	// SuccessMessage is shown to the user after a successful request.
	SuccessMessage() string
}
