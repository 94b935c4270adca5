package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	doctorID  uuid.UUID
	localDate string
	startTime string
}

// MemoryRepository is an in-process Repository used in tests and local
// development. It honors the same compare-and-swap semantics as the Postgres
// implementation: all mutations happen under one mutex.
type MemoryRepository struct {
	mu    sync.Mutex
	slots map[slotKey]*Slot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots: make(map[slotKey]*Slot),
	}
}

func (r *MemoryRepository) EnsureGrid(_ context.Context, doctorID uuid.UUID, localDate string, startTimes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, st := range startTimes {
		key := slotKey{doctorID, localDate, st}
		if _, exists := r.slots[key]; exists {
			continue
		}
		r.slots[key] = &Slot{
			DoctorID:  doctorID,
			LocalDate: localDate,
			StartTime: st,
			IsBooked:  false,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nil
}

func (r *MemoryRepository) Reserve(_ context.Context, doctorID uuid.UUID, localDate, startTime string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotKey{doctorID, localDate, startTime}]
	if !ok {
		return ErrSlotNotFound
	}
	if s.IsBooked {
		return ErrSlotAlreadyBooked
	}
	s.IsBooked = true
	s.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) Release(_ context.Context, doctorID uuid.UUID, localDate, startTime string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotKey{doctorID, localDate, startTime}]
	if !ok {
		return ErrSlotNotFound
	}
	if s.IsBooked {
		s.IsBooked = false
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRepository) ListSlots(_ context.Context, doctorID uuid.UUID, localDate string) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Slot
	for key, s := range r.slots {
		if key.doctorID == doctorID && key.localDate == localDate {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime < result[j].StartTime
	})
	return result, nil
}
