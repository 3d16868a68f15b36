// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

// Package errutil logs errors with their structured context. Directory
// and protocol detail stays in the log; only coarse outcome kinds reach
// the requester.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. For oops errors the code and
// attached context are included as structured attributes; plain errors
// log their string form.
func LogError(logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.Error(msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if context := oopsErr.Context(); len(context) > 0 {
		attrs = append(attrs, "context", context)
	}
	logger.Error(msg, attrs...)
}
