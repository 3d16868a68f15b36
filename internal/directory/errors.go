// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package directory

import "errors"

// ErrNotFound is returned by Lookup when no entry matches the username.
var ErrNotFound = errors.New("user not found")

// ErrUnavailable is returned when the directory cannot be reached or the
// service bind fails. Protocol detail is attached for logging but callers
// must not surface it to requesters.
var ErrUnavailable = errors.New("directory unavailable")

// ErrPasswordPolicy is returned when the directory rejects a new password
// for not meeting its complexity requirements.
var ErrPasswordPolicy = errors.New("password rejected by directory policy")
