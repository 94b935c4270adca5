package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Upsert(ctx context.Context, ch Challenge) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO otp_challenges
			(appointment_id, contact, purpose, code_hash, expires_at, attempt_count, last_sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, now(), now())
		ON CONFLICT (appointment_id) DO UPDATE
		SET contact       = EXCLUDED.contact,
		    purpose       = EXCLUDED.purpose,
		    code_hash     = EXCLUDED.code_hash,
		    expires_at    = EXCLUDED.expires_at,
		    attempt_count = 0,
		    last_sent_at  = EXCLUDED.last_sent_at,
		    updated_at    = now()
	`, ch.AppointmentID, ch.Contact, ch.Purpose, ch.CodeHash, ch.ExpiresAt, ch.LastSentAt)
	if err != nil {
		return fmt.Errorf("upsert otp challenge: %w", err)
	}
	return nil
}

func (r *PgRepository) Get(ctx context.Context, appointmentID uuid.UUID) (*Challenge, error) {
	var ch Challenge
	err := r.pool.QueryRow(ctx, `
		SELECT appointment_id, contact, purpose, COALESCE(code_hash, ''), expires_at,
		       attempt_count, last_sent_at, created_at, updated_at
		FROM otp_challenges
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&ch.AppointmentID,
		&ch.Contact,
		&ch.Purpose,
		&ch.CodeHash,
		&ch.ExpiresAt,
		&ch.AttemptCount,
		&ch.LastSentAt,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

func (r *PgRepository) IncrementAttempts(ctx context.Context, appointmentID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		UPDATE otp_challenges
		SET attempt_count = attempt_count + 1,
		    updated_at = now()
		WHERE appointment_id = $1
		RETURNING attempt_count
	`, appointmentID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrChallengeNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	return count, nil
}

func (r *PgRepository) ClearCode(ctx context.Context, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE otp_challenges
		SET code_hash = NULL,
		    updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("clear otp code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM otp_challenges
		WHERE appointment_id = $1
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}
