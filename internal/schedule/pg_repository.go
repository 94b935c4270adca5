package schedule

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

func (r *PgRepository) EnsureGrid(ctx context.Context, doctorID uuid.UUID, localDate string, startTimes []string) error {
	if len(startTimes) == 0 {
		return nil
	}

	// ON CONFLICT DO NOTHING makes lazy grid creation safe under concurrent
	// callers: the first writer wins and everyone else reads its rows.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO slots (doctor_id, slot_date, start_time, is_booked, created_at, updated_at)
		SELECT $1, $2, t, false, now(), now()
		FROM unnest($3::text[]) AS t
		ON CONFLICT (doctor_id, slot_date, start_time) DO NOTHING
	`, doctorID, localDate, startTimes)
	if err != nil {
		return fmt.Errorf("ensure grid: %w", err)
	}

	return nil
}

func (r *PgRepository) Reserve(ctx context.Context, doctorID uuid.UUID, localDate, startTime string) error {
	// Single conditional update. Two racing reservations hit the same row and
	// exactly one sees is_booked = false.
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET is_booked = true,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND start_time = $3
		  AND is_booked = false
	`, doctorID, localDate, startTime)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish "lost the race" from "no such slot".
	var booked bool
	err = r.pool.QueryRow(ctx, `
		SELECT is_booked
		FROM slots
		WHERE doctor_id = $1 AND slot_date = $2 AND start_time = $3
	`, doctorID, localDate, startTime).Scan(&booked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("check slot: %w", err)
	}

	return ErrSlotAlreadyBooked
}

func (r *PgRepository) Release(ctx context.Context, doctorID uuid.UUID, localDate, startTime string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET is_booked = false,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND start_time = $3
		  AND is_booked = true
	`, doctorID, localDate, startTime)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Already free is fine; missing slot is not.
	var exists bool
	err = r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE doctor_id = $1 AND slot_date = $2 AND start_time = $3
		)
	`, doctorID, localDate, startTime).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if !exists {
		return ErrSlotNotFound
	}

	return nil
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, localDate string) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT doctor_id, slot_date, start_time, is_booked, created_at, updated_at
		FROM slots
		WHERE doctor_id = $1 AND slot_date = $2
		ORDER BY start_time
	`, doctorID, localDate)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.DoctorID, &s.LocalDate, &s.StartTime, &s.IsBooked, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
