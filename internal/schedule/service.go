package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/clinic-booking/internal/tz"
)

// Calendar owns the canonical bookable grid per (doctor, date) and is the
// only component allowed to flip a slot's booked flag.
type Calendar struct {
	repo   Repository
	logger zerolog.Logger
}

func NewCalendar(repo Repository, logger zerolog.Logger) *Calendar {
	return &Calendar{
		repo:   repo,
		logger: logger.With().Str("component", "calendar").Logger(),
	}
}

// EnsureGrid lazily creates the slot grid for (doctor, date) from the weekday
// template. Idempotent and safe to race.
func (c *Calendar) EnsureGrid(ctx context.Context, doctorID uuid.UUID, localDate string) error {
	day, err := tz.Weekday(localDate)
	if err != nil {
		return err
	}

	times := TemplateTimes(day)
	if len(times) == 0 {
		// Closed day, nothing to create.
		return nil
	}

	if err := c.repo.EnsureGrid(ctx, doctorID, localDate, times); err != nil {
		return fmt.Errorf("ensure grid for %s on %s: %w", doctorID, localDate, err)
	}
	return nil
}

// Reserve atomically claims a slot. Exactly one of two concurrent callers
// succeeds; the other gets ErrSlotAlreadyBooked.
func (c *Calendar) Reserve(ctx context.Context, doctorID uuid.UUID, localDate, startTime string) error {
	if err := c.EnsureGrid(ctx, doctorID, localDate); err != nil {
		return err
	}
	return c.repo.Reserve(ctx, doctorID, localDate, startTime)
}

// Release frees a slot. Releasing an already-free slot succeeds so cancel and
// expiry paths can retry or overlap harmlessly.
func (c *Calendar) Release(ctx context.Context, doctorID uuid.UUID, localDate, startTime string) error {
	err := c.repo.Release(ctx, doctorID, localDate, startTime)
	if err == nil {
		c.logger.Debug().
			Str("doctor_id", doctorID.String()).
			Str("date", localDate).
			Str("time", startTime).
			Msg("slot released")
	}
	return err
}

// ListAvailable returns the free start times for (doctor, date), ascending.
func (c *Calendar) ListAvailable(ctx context.Context, doctorID uuid.UUID, localDate string) ([]string, error) {
	if err := c.EnsureGrid(ctx, doctorID, localDate); err != nil {
		return nil, err
	}

	slots, err := c.repo.ListSlots(ctx, doctorID, localDate)
	if err != nil {
		return nil, err
	}

	free := make([]string, 0, len(slots))
	for _, s := range slots {
		if !s.IsBooked {
			free = append(free, s.StartTime)
		}
	}
	return free, nil
}

// GetSchedule returns the full grid, booked and free, for display.
func (c *Calendar) GetSchedule(ctx context.Context, doctorID uuid.UUID, localDate string) (*DoctorSchedule, error) {
	if err := c.EnsureGrid(ctx, doctorID, localDate); err != nil {
		return nil, err
	}

	slots, err := c.repo.ListSlots(ctx, doctorID, localDate)
	if err != nil {
		return nil, err
	}

	return &DoctorSchedule{
		DoctorID:  doctorID,
		LocalDate: localDate,
		Slots:     slots,
	}, nil
}
