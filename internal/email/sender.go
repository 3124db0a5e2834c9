package email

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EmailSender delivers one plain-text message.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogSender writes messages to the context logger instead of delivering them.
// The server uses it when SES is disabled.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, recipient, subject, body string) error {
	log.Ctx(ctx).Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("Email delivery disabled; notification logged")
	return nil
}
