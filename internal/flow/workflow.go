// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package flow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/resetgate/resetgate/internal/directory"
	"github.com/resetgate/resetgate/internal/sender"
	"github.com/resetgate/resetgate/internal/token"
	"github.com/resetgate/resetgate/pkg/errutil"
)

// User-facing messages. Lookup failure and unknown username share one
// message so the two are indistinguishable to a requester.
const (
	msgNotVerified      = "Please complete the verification and try again."
	msgRequestFailed    = "Could not request a token. Please try again later."
	msgDeliveryFailed   = "Could not deliver the token. Please try again later."
	msgTokenInvalid     = "The token is not valid."
	msgPasswordMismatch = "The passwords do not match."
	msgPasswordPolicy   = "The password does not meet the directory's requirements."
	msgChangeFailed     = "Could not set the password. Please try again later."
	msgChanged          = "Your password has been changed."
	msgWrongStage       = "That action is not available right now."
)

// Workflow is the per-session reset state machine.
type Workflow struct {
	dir      Directory
	issuer   Issuer
	sender   sender.TokenSender
	tokenTTL time.Duration
	logger   *slog.Logger

	stage    Stage
	username string
	identity *directory.Identity
	token    *token.Token
}

// NewWorkflow creates a Workflow with a no-op logger.
func NewWorkflow(dir Directory, issuer Issuer, tokenSender sender.TokenSender, tokenTTL time.Duration) (*Workflow, error) {
	return NewWorkflowWithLogger(dir, issuer, tokenSender, tokenTTL, slog.New(slog.DiscardHandler))
}

// NewWorkflowWithLogger creates a Workflow with the provided logger.
// Returns an error if any required dependency is nil.
func NewWorkflowWithLogger(dir Directory, issuer Issuer, tokenSender sender.TokenSender, tokenTTL time.Duration, logger *slog.Logger) (*Workflow, error) {
	if dir == nil {
		return nil, oops.Errorf("directory is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if tokenSender == nil {
		return nil, oops.Errorf("token sender is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = token.DefaultTTL
	}
	return &Workflow{
		dir:      dir,
		issuer:   issuer,
		sender:   tokenSender,
		tokenTTL: tokenTTL,
		logger:   logger,
		stage:    StageRequestToken,
	}, nil
}

// Stage returns the session's current stage. Rendering is the
// presentation layer's concern, driven by reading this.
func (w *Workflow) Stage() Stage {
	return w.stage
}

// RequestToken handles a username submission in StageRequestToken.
// Unverified requests are rejected before any directory contact.
func (w *Workflow) RequestToken(ctx context.Context, username string, humanVerified bool) Outcome {
	if w.stage != StageRequestToken {
		return w.failure(KindRequestFailed, msgWrongStage)
	}
	if !humanVerified {
		return w.failure(KindNotVerified, msgNotVerified)
	}

	identity, err := w.dir.Lookup(ctx, username)
	if err != nil {
		// Unknown username and directory outage collapse into the same
		// outcome; detail goes to the log only.
		if errors.Is(err, directory.ErrNotFound) {
			w.logger.Debug("reset requested for unknown username", "username", username)
		} else {
			errutil.LogError(w.logger, "directory lookup failed", err)
		}
		return w.failure(KindRequestFailed, msgRequestFailed)
	}

	if err := w.sender.Eligible(identity); err != nil {
		return w.failure(KindSenderIneligible, err.Error())
	}

	issued, err := w.issuer.Issue(*identity, w.tokenTTL)
	if err != nil {
		errutil.LogError(w.logger, "token issue failed", err)
		return w.failure(KindRequestFailed, msgRequestFailed)
	}

	if err := w.sender.Deliver(ctx, identity, issued.Value); err != nil {
		errutil.LogError(w.logger, "token delivery failed", err)
		return w.failure(KindDeliveryFailed, msgDeliveryFailed)
	}

	w.username = username
	w.identity = identity
	w.stage = StageUseToken
	w.logger.Info("reset token requested", "principal", identity.PrincipalName)
	return w.success(w.sender.SuccessMessage())
}

// SubmitToken handles a token submission in StageUseToken. A token
// bound to a different identity than the session's is treated exactly
// like an invalid one.
func (w *Workflow) SubmitToken(value string) Outcome {
	if w.stage != StageUseToken {
		return w.failure(KindTokenInvalid, msgWrongStage)
	}

	validated := w.issuer.Validate(value)
	if validated == nil {
		return w.failure(KindTokenInvalid, msgTokenInvalid)
	}
	if w.identity == nil || validated.Identity.DN != w.identity.DN {
		w.logger.Warn("token identity mismatch",
			"session_principal", w.principal())
		return w.failure(KindTokenInvalid, msgTokenInvalid)
	}

	w.token = validated
	w.stage = StageSetPassword
	return w.success("")
}

// SetPassword handles the final stage. The token is consumed only once
// the directory accepts the new password, so policy rejections leave it
// usable for a retry.
func (w *Workflow) SetPassword(ctx context.Context, newPassword, repeat string) Outcome {
	if w.stage != StageSetPassword {
		return w.failure(KindRequestFailed, msgWrongStage)
	}
	if newPassword != repeat {
		return w.failure(KindPasswordMismatch, msgPasswordMismatch)
	}

	if err := w.dir.ChangePassword(ctx, w.identity.DN, newPassword); err != nil {
		if errors.Is(err, directory.ErrPasswordPolicy) {
			return w.failure(KindPasswordPolicy, msgPasswordPolicy)
		}
		errutil.LogError(w.logger, "password change failed", err)
		return w.failure(KindRequestFailed, msgChangeFailed)
	}

	if !w.issuer.Consume(w.token.Value) {
		// The password was already changed; a lost consume only means
		// the token had expired or been overwritten in the meantime.
		w.logger.Warn("token could not be consumed after password change",
			"principal", w.principal())
	}

	w.logger.Info("password reset completed", "principal", w.principal())
	w.reset()
	return Outcome{OK: true, Kind: KindOK, Message: msgChanged, Stage: w.stage}
}

// Back clears all session state and returns to StageRequestToken.
func (w *Workflow) Back() Outcome {
	w.reset()
	return w.success("")
}

// Clear is an alias for Back, used when a session is abandoned.
func (w *Workflow) Clear() {
	w.reset()
}

func (w *Workflow) reset() {
	w.stage = StageRequestToken
	w.username = ""
	w.identity = nil
	w.token = nil
}

func (w *Workflow) principal() string {
	if w.identity == nil {
		return ""
	}
	return w.identity.PrincipalName
}

func (w *Workflow) success(message string) Outcome {
	return Outcome{OK: true, Kind: KindOK, Message: message, Stage: w.stage}
}

func (w *Workflow) failure(kind Kind, message string) Outcome {
	return Outcome{Kind: kind, Message: message, Stage: w.stage}
}
