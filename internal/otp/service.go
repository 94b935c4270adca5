package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medisched/clinic-booking/internal/metrics"
)

const codeDigits = 6

var (
	ErrExpired   = errors.New("otp code has expired")
	ErrMismatch  = errors.New("otp code does not match")
	ErrLocked    = errors.New("otp challenge locked after too many attempts")
	ErrThrottled = errors.New("otp resend throttled, wait before requesting another code")
)

// Service issues and verifies short-lived possession proofs bound to one
// appointment each.
type Service struct {
	repo        Repository
	sender      Sender
	ttl         time.Duration
	maxAttempts int
	cooldown    time.Duration
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, sender Sender, ttl time.Duration, maxAttempts int, cooldown time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		sender:      sender,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		metrics:     m,
		logger:      logger.With().Str("component", "otp").Logger(),
		now:         time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue generates a fresh 6-digit code for the appointment, persists its hash
// with a new expiry window, and hands the plaintext to the sender. Re-issuing
// inside the cooldown window fails with ErrThrottled rather than silently
// re-sending.
func (s *Service) Issue(ctx context.Context, appointmentID uuid.UUID, contact string) (string, error) {
	now := s.now()

	existing, err := s.repo.Get(ctx, appointmentID)
	if err != nil && !errors.Is(err, ErrChallengeNotFound) {
		return "", fmt.Errorf("load otp challenge: %w", err)
	}
	if existing != nil && now.Sub(existing.LastSentAt) < s.cooldown {
		return "", ErrThrottled
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash otp code: %w", err)
	}

	ch := Challenge{
		AppointmentID: appointmentID,
		Contact:       contact,
		Purpose:       PurposeConfirmAppointment,
		CodeHash:      string(hash),
		ExpiresAt:     now.Add(s.ttl),
		LastSentAt:    now,
	}
	if err := s.repo.Upsert(ctx, ch); err != nil {
		return "", fmt.Errorf("store otp challenge: %w", err)
	}

	if err := s.sender.SendOTP(ctx, contact, code); err != nil {
		return "", fmt.Errorf("send otp: %w", err)
	}

	s.metrics.RecordOTPIssued()
	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Time("expires_at", ch.ExpiresAt).
		Msg("otp issued")

	return code, nil
}

// Verify checks a candidate code. Expiry is checked first and consumes no
// attempt; after maxAttempts mismatches every further attempt fails with
// ErrLocked even for the correct code, until a fresh Issue.
func (s *Service) Verify(ctx context.Context, appointmentID uuid.UUID, candidate string) error {
	ch, err := s.repo.Get(ctx, appointmentID)
	if err != nil {
		return err
	}

	if s.now().After(ch.ExpiresAt) {
		s.metrics.RecordOTPVerification("expired")
		return ErrExpired
	}

	if ch.AttemptCount >= s.maxAttempts {
		s.metrics.RecordOTPVerification("locked")
		return ErrLocked
	}

	if ch.CodeHash == "" {
		// Code already consumed; a stale retry of a confirmed appointment.
		s.metrics.RecordOTPVerification("consumed")
		return ErrChallengeNotFound
	}

	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(candidate)) != nil {
		if _, err := s.repo.IncrementAttempts(ctx, appointmentID); err != nil {
			return fmt.Errorf("record otp attempt: %w", err)
		}
		s.metrics.RecordOTPVerification("mismatch")
		return ErrMismatch
	}

	// Single use: the stored hash is cleared on success.
	if err := s.repo.ClearCode(ctx, appointmentID); err != nil {
		return fmt.Errorf("clear otp code: %w", err)
	}

	s.metrics.RecordOTPVerification("ok")
	return nil
}

// Clear removes the challenge when its appointment reaches a terminal state.
func (s *Service) Clear(ctx context.Context, appointmentID uuid.UUID) error {
	return s.repo.Delete(ctx, appointmentID)
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for range codeDigits {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
