// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package sender

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samber/oops"

	"github.com/resetgate/resetgate/internal/directory"
)

// Console surfaces tokens directly on a writer. Diagnostic use only;
// every identity is eligible.
type Console struct {
	out io.Writer
}

// NewConsole creates a Console sender writing to stdout.
func NewConsole() *Console {
	return NewConsoleWithWriter(os.Stdout)
}

// NewConsoleWithWriter creates a Console sender writing to out.
func NewConsoleWithWriter(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Eligible always succeeds for the console channel.
func (c *Console) Eligible(_ *directory.Identity) error {
	return nil
}

// Deliver prints the token.
func (c *Console) Deliver(_ context.Context, _ *directory.Identity, tokenValue string) error {
	if _, err := fmt.Fprintf(c.out, "Generated token '%s'.\n", tokenValue); err != nil {
		return oops.Code("CONSOLE_DELIVERY_FAILED").Wrap(err)
	}
	return nil
}

// SuccessMessage implements TokenSender.
func (c *Console) SuccessMessage() string {
	return "A token has been generated."
}
