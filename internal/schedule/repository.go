package schedule

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotAlreadyBooked = errors.New("slot already booked")
)

// Repository owns slot persistence. Reserve is the single serialization
// point for a (doctor, date, time) key and must be a single atomic
// conditional update, never a read-then-write pair.
type Repository interface {
	// EnsureGrid inserts the given start times for (doctor, date), skipping
	// any that already exist. Safe to race: first writer wins, losers no-op.
	EnsureGrid(ctx context.Context, doctorID uuid.UUID, localDate string, startTimes []string) error

	// Reserve flips is_booked false->true. Returns ErrSlotAlreadyBooked if
	// another booking won, ErrSlotNotFound if the slot does not exist.
	Reserve(ctx context.Context, doctorID uuid.UUID, localDate, startTime string) error

	// Release flips is_booked true->false. Releasing an already-free slot is
	// a no-op success; a missing slot is ErrSlotNotFound.
	Release(ctx context.Context, doctorID uuid.UUID, localDate, startTime string) error

	// ListSlots returns all slots for (doctor, date) ordered by start time.
	ListSlots(ctx context.Context, doctorID uuid.UUID, localDate string) ([]Slot, error)
}
