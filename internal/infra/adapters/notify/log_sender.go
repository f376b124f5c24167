package notify

import (
	"context"

	"github.com/rs/zerolog"

	"nexus-billing/internal/domain/ports/adapter"
	"nexus-billing/internal/infra/logging"
)

var _ adapter.CodeSender = (*LogSender)(nil)

// LogSender writes codes to the log instead of delivering them.
// Codes are only printed in dev mode.
type LogSender struct {
	log *zerolog.Logger
	dev bool
}

func NewLogSender(logger *zerolog.Logger, dev bool) *LogSender {
	l := logger.With().Str("component", "code_sender").Logger()
	return &LogSender{log: &l, dev: dev}
}

func (s *LogSender) Send(ctx context.Context, contact, code string) error {
	ev := logging.With(ctx, s.log).Info().Str("contact", logging.Redact(contact, s.dev))
	if s.dev {
		ev = ev.Str("code", code)
	}
	ev.Msg("one-time code issued")
	return nil
}
