package otp

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTTL      = 5 * time.Minute
	testAttempts = 5
	testCooldown = time.Minute
)

type captureSender struct {
	contact string
	code    string
	sends   int
}

func (s *captureSender) SendOTP(_ context.Context, contact, code string) error {
	s.contact = contact
	s.code = code
	s.sends++
	return nil
}

type fixture struct {
	svc    *Service
	repo   *MemoryRepository
	sender *captureSender
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:   NewMemoryRepository(),
		sender: &captureSender{},
		now:    time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.sender, testTTL, testAttempts, testCooldown, nil, zerolog.Nop()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestIssueAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	code, err := f.svc.Issue(ctx, apptID, "+84901234567")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
	assert.Equal(t, code, f.sender.code)
	assert.Equal(t, "+84901234567", f.sender.contact)

	require.NoError(t, f.svc.Verify(ctx, apptID, code))

	// Single use: the same code cannot be replayed.
	err = f.svc.Verify(ctx, apptID, code)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Verify(context.Background(), uuid.New(), "123456")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyExpiredConsumesNoAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	code, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	f.advance(testTTL + time.Second)

	err = f.svc.Verify(ctx, apptID, code)
	assert.ErrorIs(t, err, ErrExpired)

	ch, err := f.repo.Get(ctx, apptID)
	require.NoError(t, err)
	assert.Zero(t, ch.AttemptCount)
}

func TestVerifyMismatchCountsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	_, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	err = f.svc.Verify(ctx, apptID, "000000")
	assert.ErrorIs(t, err, ErrMismatch)

	ch, err := f.repo.Get(ctx, apptID)
	require.NoError(t, err)
	assert.Equal(t, 1, ch.AttemptCount)
}

func TestLockoutBlocksCorrectCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	code, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	for range testAttempts {
		err := f.svc.Verify(ctx, apptID, "000000")
		assert.ErrorIs(t, err, ErrMismatch)
	}

	// Correct code after the limit still fails until re-issue.
	err = f.svc.Verify(ctx, apptID, code)
	assert.ErrorIs(t, err, ErrLocked)

	f.advance(testCooldown + time.Second)
	fresh, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	require.NoError(t, f.svc.Verify(ctx, apptID, fresh))
}

func TestResendThrottle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	_, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	_, err = f.svc.Issue(ctx, apptID, "contact")
	assert.ErrorIs(t, err, ErrThrottled)
	assert.Equal(t, 1, f.sender.sends)

	f.advance(testCooldown + time.Second)

	_, err = f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)
	assert.Equal(t, 2, f.sender.sends)
}

func TestReissueInvalidatesOldCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	old, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	f.advance(testCooldown + time.Second)
	fresh, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	if old != fresh {
		err = f.svc.Verify(ctx, apptID, old)
		assert.ErrorIs(t, err, ErrMismatch)
	}
	require.NoError(t, f.svc.Verify(ctx, apptID, fresh))
}

func TestClearRemovesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	apptID := uuid.New()

	code, err := f.svc.Issue(ctx, apptID, "contact")
	require.NoError(t, err)

	require.NoError(t, f.svc.Clear(ctx, apptID))

	err = f.svc.Verify(ctx, apptID, code)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
