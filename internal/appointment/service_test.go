package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medisched/clinic-booking/internal/otp"
	redisclient "github.com/medisched/clinic-booking/internal/redis"
	"github.com/medisched/clinic-booking/internal/schedule"
	"github.com/medisched/clinic-booking/internal/tz"
)

const (
	testMonday = "2025-03-10"
	testSunday = "2025-03-09"

	testHoldTTL  = 5 * time.Minute
	testOTPTTL   = 5 * time.Minute
	testCooldown = time.Minute
	testBatch    = 100
)

type stubSender struct {
	mu   sync.Mutex
	fail bool
	sent int
}

func (s *stubSender) SendOTP(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("gateway unavailable")
	}
	s.sent++
	return nil
}

type fixture struct {
	repo      *MemoryRepository
	schedRepo *schedule.MemoryRepository
	calendar  *schedule.Calendar
	sender    *stubSender
	svc       *Service

	doctorID  uuid.UUID
	patientID uuid.UUID

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      NewMemoryRepository(),
		schedRepo: schedule.NewMemoryRepository(),
		sender:    &stubSender{},
		doctorID:  uuid.New(),
		patientID: uuid.New(),
		now:       time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC), // 08:00 ICT
	}

	f.repo.AddDoctor(Doctor{ID: f.doctorID, Name: "Dr. Lan"})
	f.repo.AddPatient(Patient{ID: f.patientID, Name: "Minh", Phone: "+84901234567"})

	f.calendar = schedule.NewCalendar(f.schedRepo, zerolog.Nop())
	otpSvc := otp.NewService(otp.NewMemoryRepository(), f.sender, testOTPTTL, 5, testCooldown, nil, zerolog.Nop()).
		WithClock(f.clock)
	f.svc = NewService(f.repo, f.calendar, otpSvc, redisclient.NoopLocker{}, tz.ICT, testHoldTTL, testBatch, nil, zerolog.Nop()).
		WithClock(f.clock)

	return f
}

func (f *fixture) book(t *testing.T, localTime string) (*Appointment, string) {
	t.Helper()
	appt, code, err := f.svc.Create(context.Background(), f.doctorID, f.patientID, testMonday, localTime, "checkup")
	require.NoError(t, err)
	require.NotNil(t, appt)
	require.Len(t, code, 6)
	return appt, code
}

func (f *fixture) slotFree(t *testing.T, localTime string) bool {
	t.Helper()
	free, err := f.calendar.ListAvailable(context.Background(), f.doctorID, testMonday)
	require.NoError(t, err)
	for _, tm := range free {
		if tm == localTime {
			return true
		}
	}
	return false
}

func TestBookAndConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, "2025-03-10T02:00:00Z", appt.DatetimeUTC.Format(time.RFC3339))
	assert.False(t, f.slotFree(t, "09:00"))

	f.advance(2 * time.Minute)

	confirmed, err := f.svc.Confirm(ctx, appt.ID, code)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	assert.True(t, confirmed.Verified)
	assert.False(t, f.slotFree(t, "09:00"))
}

func TestDoubleBookSameSlot(t *testing.T) {
	f := newFixture(t)

	f.book(t, "09:00")

	_, _, err := f.svc.Create(context.Background(), f.doctorID, f.patientID, testMonday, "09:00", "second try")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestSweeperExpiresStaleBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.book(t, "09:00")

	f.advance(testHoldTTL + time.Minute)
	require.NoError(t, f.svc.ExpireStalePending(ctx))

	got, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.True(t, f.slotFree(t, "09:00"))

	// Slot is re-bookable after expiry.
	again, _ := f.book(t, "09:00")
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestCancelBeforeConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.book(t, "09:00")

	cancelled, err := f.svc.Cancel(ctx, appt.ID, Actor{ID: f.patientID, Role: RolePatient})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, f.slotFree(t, "09:00"))

	// Second cancel reports already-terminal, state unchanged.
	_, err = f.svc.Cancel(ctx, appt.ID, Actor{ID: f.patientID, Role: RolePatient})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	got, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestSundayHasNoSlots(t *testing.T) {
	f := newFixture(t)

	free, err := f.svc.ListAvailableSlots(context.Background(), f.doctorID, testSunday)
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestCreateRollsBackWhenOTPIssueFails(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = true

	_, _, err := f.svc.Create(context.Background(), f.doctorID, f.patientID, testMonday, "09:00", "checkup")
	require.Error(t, err)

	// No partial state: slot free again, no appointment rows.
	assert.True(t, f.slotFree(t, "09:00"))
	list, err := f.svc.ListAppointmentsByPatient(context.Background(), f.patientID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, f.doctorID, f.patientID, "10/03/2025", "09:00", "")
	assert.ErrorIs(t, err, tz.ErrInvalidDate)

	_, _, err = f.svc.Create(ctx, f.doctorID, f.patientID, testMonday, "9:00am", "")
	assert.ErrorIs(t, err, tz.ErrInvalidTime)

	_, _, err = f.svc.Create(ctx, uuid.New(), f.patientID, testMonday, "09:00", "")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, _, err = f.svc.Create(ctx, f.doctorID, uuid.New(), testMonday, "09:00", "")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	// Outside the working template.
	_, _, err = f.svc.Create(ctx, f.doctorID, f.patientID, testMonday, "12:00", "")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestConfirmWrongThenCorrectCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")

	_, err := f.svc.Confirm(ctx, appt.ID, "000000")
	assert.ErrorIs(t, err, otp.ErrMismatch)

	got, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	confirmed, err := f.svc.Confirm(ctx, appt.ID, code)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestConfirmAfterOTPExpiryLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")

	f.advance(testOTPTTL + time.Second)

	_, err := f.svc.Confirm(ctx, appt.ID, code)
	assert.ErrorIs(t, err, otp.ErrExpired)

	// Confirm only reports; expiring the hold is the sweeper's job.
	got, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, f.slotFree(t, "09:00"))
}

func TestConfirmTerminalAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")
	_, err := f.svc.Cancel(ctx, appt.ID, Actor{ID: f.patientID, Role: RolePatient})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, appt.ID, code)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancelForeignAppointmentForbidden(t *testing.T) {
	f := newFixture(t)

	appt, _ := f.book(t, "09:00")

	_, err := f.svc.Cancel(context.Background(), appt.ID, Actor{ID: uuid.New(), Role: RolePatient})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelConfirmedAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")
	_, err := f.svc.Confirm(ctx, appt.ID, code)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, appt.ID, Actor{ID: f.doctorID, Role: RoleDoctor})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, f.slotFree(t, "09:00"))
}

func TestCompleteRequiresDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")
	_, err := f.svc.Confirm(ctx, appt.ID, code)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, appt.ID, Actor{ID: f.patientID, Role: RolePatient})
	assert.ErrorIs(t, err, ErrForbidden)

	done, err := f.svc.Complete(ctx, appt.ID, Actor{ID: f.doctorID, Role: RoleDoctor})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	// Completed slot stays consumed historically.
	assert.False(t, f.slotFree(t, "09:00"))
}

func TestCompletePendingRejected(t *testing.T) {
	f := newFixture(t)

	appt, _ := f.book(t, "09:00")

	_, err := f.svc.Complete(context.Background(), appt.ID, Actor{ID: f.doctorID, Role: RoleDoctor})
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestResendOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.book(t, "09:00")

	err := f.svc.ResendOTP(ctx, appt.ID)
	assert.ErrorIs(t, err, otp.ErrThrottled)

	f.advance(testCooldown + time.Second)
	require.NoError(t, f.svc.ResendOTP(ctx, appt.ID))
	assert.Equal(t, 2, f.sender.sent)
}

func TestResendOTPTerminalAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.book(t, "09:00")
	_, err := f.svc.Cancel(ctx, appt.ID, Actor{ID: f.patientID, Role: RolePatient})
	require.NoError(t, err)

	err = f.svc.ResendOTP(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestSweepIsSafeToRerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, _ := f.book(t, "09:00")
	f.advance(testHoldTTL + time.Minute)

	require.NoError(t, f.svc.ExpireStalePending(ctx))
	require.NoError(t, f.svc.ExpireStalePending(ctx))

	got, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.True(t, f.slotFree(t, "09:00"))
}

func TestSweepDoesNotTouchFreshOrConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh, _ := f.book(t, "09:00")
	confirmedAppt, code := f.book(t, "09:30")
	_, err := f.svc.Confirm(ctx, confirmedAppt.ID, code)
	require.NoError(t, err)

	require.NoError(t, f.svc.ExpireStalePending(ctx))

	got, err := f.repo.GetAppointmentByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	got, err = f.repo.GetAppointmentByID(ctx, confirmedAppt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestAvailabilityNeverListsHeldSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a1, _ := f.book(t, "08:00")
	a2, code := f.book(t, "08:30")
	_, err := f.svc.Confirm(ctx, a2.ID, code)
	require.NoError(t, err)

	free, err := f.svc.ListAvailableSlots(ctx, f.doctorID, testMonday)
	require.NoError(t, err)
	assert.NotContains(t, free, "08:00")
	assert.NotContains(t, free, "08:30")

	// Releasing via cancel brings the slot back.
	_, err = f.svc.Cancel(ctx, a1.ID, Actor{ID: f.patientID, Role: RolePatient})
	require.NoError(t, err)

	free, err = f.svc.ListAvailableSlots(ctx, f.doctorID, testMonday)
	require.NoError(t, err)
	assert.Contains(t, free, "08:00")
}

func TestConcurrentCreateSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const racers = 8
	errs := make(chan error, racers)

	var wg sync.WaitGroup
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.Create(ctx, f.doctorID, f.patientID, testMonday, "09:00", "race")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotUnavailable):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, conflicts)
}

func TestListAppointmentsByPatientClampsLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "09:00")
	f.book(t, "09:30")

	list, err := f.svc.ListAppointmentsByPatient(ctx, f.patientID, -1, -5)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.svc.ListAppointmentsByPatient(ctx, f.patientID, 1, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEventLogRecordsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, code := f.book(t, "09:00")
	_, err := f.svc.Confirm(ctx, appt.ID, code)
	require.NoError(t, err)

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{EventAppointmentCreated, EventAppointmentConfirmed}, types)
}
