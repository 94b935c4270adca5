package schedule

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	monday = "2025-03-10"
	sunday = "2025-03-09"
)

func newTestCalendar() *Calendar {
	return NewCalendar(NewMemoryRepository(), zerolog.Nop())
}

func TestListAvailableGeneratesGridLazily(t *testing.T) {
	cal := newTestCalendar()
	doctorID := uuid.New()

	free, err := cal.ListAvailable(context.Background(), doctorID, monday)
	require.NoError(t, err)

	assert.Len(t, free, 13)
	assert.Equal(t, "08:00", free[0])
	assert.Equal(t, "16:00", free[len(free)-1])
}

func TestListAvailableSundayEmpty(t *testing.T) {
	cal := newTestCalendar()

	free, err := cal.ListAvailable(context.Background(), uuid.New(), sunday)
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestListAvailableRejectsMalformedDate(t *testing.T) {
	cal := newTestCalendar()

	_, err := cal.ListAvailable(context.Background(), uuid.New(), "03/10/2025")
	assert.Error(t, err)
}

func TestReserveRemovesSlotFromAvailability(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()
	doctorID := uuid.New()

	require.NoError(t, cal.Reserve(ctx, doctorID, monday, "09:00"))

	free, err := cal.ListAvailable(ctx, doctorID, monday)
	require.NoError(t, err)
	assert.NotContains(t, free, "09:00")
	assert.Len(t, free, 12)
}

func TestReserveUnknownTime(t *testing.T) {
	cal := newTestCalendar()

	err := cal.Reserve(context.Background(), uuid.New(), monday, "12:00")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestReserveTwiceFails(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()
	doctorID := uuid.New()

	require.NoError(t, cal.Reserve(ctx, doctorID, monday, "09:00"))
	err := cal.Reserve(ctx, doctorID, monday, "09:00")
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()
	doctorID := uuid.New()

	require.NoError(t, cal.EnsureGrid(ctx, doctorID, monday))

	const racers = 16
	results := make(chan error, racers)

	var wg sync.WaitGroup
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- cal.Reserve(ctx, doctorID, monday, "09:00")
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrSlotAlreadyBooked):
			conflicts++
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)
}

func TestReleaseIsIdempotent(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()
	doctorID := uuid.New()

	require.NoError(t, cal.Reserve(ctx, doctorID, monday, "09:00"))

	require.NoError(t, cal.Release(ctx, doctorID, monday, "09:00"))
	require.NoError(t, cal.Release(ctx, doctorID, monday, "09:00"))

	free, err := cal.ListAvailable(ctx, doctorID, monday)
	require.NoError(t, err)
	assert.Contains(t, free, "09:00")
}

func TestReleaseMissingSlot(t *testing.T) {
	cal := newTestCalendar()

	err := cal.Release(context.Background(), uuid.New(), monday, "09:00")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestEnsureGridIdempotent(t *testing.T) {
	cal := newTestCalendar()
	ctx := context.Background()
	doctorID := uuid.New()

	require.NoError(t, cal.EnsureGrid(ctx, doctorID, monday))
	require.NoError(t, cal.Reserve(ctx, doctorID, monday, "09:00"))

	// Re-creating the grid must not resurrect or duplicate booked slots.
	require.NoError(t, cal.EnsureGrid(ctx, doctorID, monday))

	sched, err := cal.GetSchedule(ctx, doctorID, monday)
	require.NoError(t, err)
	assert.Len(t, sched.Slots, 13)

	booked := 0
	for _, s := range sched.Slots {
		if s.IsBooked {
			booked++
		}
	}
	assert.Equal(t, 1, booked)
}
