package otp

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrChallengeNotFound = errors.New("otp challenge not found")

// Repository persists one challenge per appointment.
type Repository interface {
	// Upsert replaces the challenge for an appointment, resetting attempts.
	Upsert(ctx context.Context, ch Challenge) error

	Get(ctx context.Context, appointmentID uuid.UUID) (*Challenge, error)

	// IncrementAttempts adds one failed attempt and returns the new count.
	IncrementAttempts(ctx context.Context, appointmentID uuid.UUID) (int, error)

	// ClearCode blanks the stored hash after a successful verification so the
	// code is single use.
	ClearCode(ctx context.Context, appointmentID uuid.UUID) error

	// Delete removes the challenge when its appointment terminates.
	Delete(ctx context.Context, appointmentID uuid.UUID) error
}
