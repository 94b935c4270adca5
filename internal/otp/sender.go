package otp

import (
	"context"

	"github.com/rs/zerolog"
)

// Sender delivers the plaintext code out-of-band (SMS, email). The real
// gateway lives outside this service.
type Sender interface {
	SendOTP(ctx context.Context, contact, code string) error
}

// LogSender writes codes to the log instead of sending them. Dev only.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendOTP(_ context.Context, contact, code string) error {
	s.Logger.Info().
		Str("contact", contact).
		Str("code", code).
		Msg("otp send (log sender)")
	return nil
}
