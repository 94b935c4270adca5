package otp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and local
// development.
type MemoryRepository struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*Challenge
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		challenges: make(map[uuid.UUID]*Challenge),
	}
}

func (r *MemoryRepository) Upsert(_ context.Context, ch Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := ch
	stored.AttemptCount = 0
	if existing, ok := r.challenges[ch.AppointmentID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.challenges[ch.AppointmentID] = &stored
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, appointmentID uuid.UUID) (*Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[appointmentID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *ch
	return &cp, nil
}

func (r *MemoryRepository) IncrementAttempts(_ context.Context, appointmentID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[appointmentID]
	if !ok {
		return 0, ErrChallengeNotFound
	}
	ch.AttemptCount++
	ch.UpdatedAt = time.Now()
	return ch.AttemptCount, nil
}

func (r *MemoryRepository) ClearCode(_ context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.challenges[appointmentID]
	if !ok {
		return ErrChallengeNotFound
	}
	ch.CodeHash = ""
	ch.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.challenges, appointmentID)
	return nil
}
