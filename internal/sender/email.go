// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Resetgate Contributors

package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"

	"github.com/resetgate/resetgate/internal/directory"
)

// Email channel message texts.
const (
	emailSubject = "Password Reset"
)

// SMTPConfig holds the delivery settings for the e-mail channel.
type SMTPConfig struct {
	Host string
	Port int
	From string

	// Username and Password are optional; when empty the client
	// connects unauthenticated.
	Username string
	Password string
}

// Validate checks that the configuration is complete.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return oops.Errorf("smtp host is required")
	}
	if c.From == "" {
		return oops.Errorf("smtp from address is required")
	}
	return nil
}

// Email delivers tokens to the identity's directory mail attribute.
type Email struct {
	cfg    SMTPConfig
	logger *slog.Logger

	// send transmits a composed message. Overridable in tests.
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewEmail creates an Email sender with a no-op logger.
func NewEmail(cfg SMTPConfig) (*Email, error) {
	return NewEmailWithLogger(cfg, slog.New(slog.DiscardHandler))
}

// NewEmailWithLogger creates an Email sender with the provided logger.
func NewEmailWithLogger(cfg SMTPConfig, logger *slog.Logger) (*Email, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}

	e := &Email{
		cfg:    cfg,
		logger: logger,
	}
	e.send = e.smtpSend
	return e, nil
}

// Eligible requires the identity to carry an e-mail address.
func (e *Email) Eligible(identity *directory.Identity) error {
	if identity.Mail == "" {
		e.logger.Warn("identity has no e-mail address",
			"principal", identity.PrincipalName)
		return oops.Errorf("Your user has no e-mail address.")
	}
	return nil
}

// Deliver composes and sends the token message.
func (e *Email) Deliver(ctx context.Context, identity *directory.Identity, tokenValue string) error {
	msg, err := e.compose(identity, tokenValue)
	if err != nil {
		return err
	}

	if err := e.send(ctx, msg); err != nil {
		return oops.Code("EMAIL_DELIVERY_FAILED").
			With("host", e.cfg.Host).
			Wrap(err)
	}

	e.logger.Info("token delivered", "principal", identity.PrincipalName)
	return nil
}

// SuccessMessage implements TokenSender.
func (e *Email) SuccessMessage() string {
	return "Check your e-mail."
}

// compose builds the plain-text token message.
func (e *Email) compose(identity *directory.Identity, tokenValue string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(e.cfg.From); err != nil {
		return nil, oops.Code("EMAIL_COMPOSE_FAILED").
			With("from", e.cfg.From).
			Wrap(err)
	}
	if err := msg.To(identity.Mail); err != nil {
		return nil, oops.Code("EMAIL_COMPOSE_FAILED").Wrap(err)
	}
	msg.Subject(emailSubject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("Your token is '%s'", tokenValue))
	return msg, nil
}

// smtpSend transmits via the configured SMTP relay.
func (e *Email) smtpSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if e.cfg.Port > 0 {
		opts = append(opts, mail.WithPort(e.cfg.Port))
	}
	if e.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.cfg.Username),
			mail.WithPassword(e.cfg.Password),
		)
	}

	client, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
