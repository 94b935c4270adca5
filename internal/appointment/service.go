package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medisched/clinic-booking/internal/metrics"
	"github.com/medisched/clinic-booking/internal/otp"
	redisclient "github.com/medisched/clinic-booking/internal/redis"
	"github.com/medisched/clinic-booking/internal/schedule"
	"github.com/medisched/clinic-booking/internal/tz"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentExpired   = "APPOINTMENT_EXPIRED"
	EventOTPResent            = "OTP_RESENT"
)

var (
	ErrSlotUnavailable         = errors.New("slot no longer available, please choose another")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrForbidden               = errors.New("actor is not permitted to perform this action")
)

// Service owns the appointment lifecycle. It is the only writer of
// appointment rows; slot flips go through the Calendar and OTP state through
// the otp service.
type Service struct {
	repo       Repository
	calendar   *schedule.Calendar
	otp        *otp.Service
	locker     redisclient.Locker
	businessTZ time.Duration
	holdTTL    time.Duration
	sweepBatch int
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(
	repo Repository,
	calendar *schedule.Calendar,
	otpSvc *otp.Service,
	locker redisclient.Locker,
	businessTZ, holdTTL time.Duration,
	sweepBatch int,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		calendar:   calendar,
		otp:        otpSvc,
		locker:     locker,
		businessTZ: businessTZ,
		holdTTL:    holdTTL,
		sweepBatch: sweepBatch,
		metrics:    m,
		logger:     logger.With().Str("component", "appointment").Logger(),
		now:        time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create reserves the requested slot and persists a pending appointment with
// a fresh OTP challenge. The reservation and the OTP issuance are
// all-or-nothing: if issuance fails the reservation is rolled back. The
// returned plaintext code is exposed to callers only in dev environments.
func (s *Service) Create(ctx context.Context, doctorID, patientID uuid.UUID, localDate, localTime, reason string) (*Appointment, string, error) {
	patient, err := s.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("load patient: %w", err)
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("load doctor: %w", err)
	}

	instant, err := tz.ToUTC(localDate, localTime, s.businessTZ)
	if err != nil {
		return nil, "", err
	}

	var created *Appointment
	var code string

	err = s.locker.WithLock(ctx, redisclient.SlotKey(doctorID, localDate, localTime), func(lockCtx context.Context) error {
		if err := s.calendar.Reserve(lockCtx, doctorID, localDate, localTime); err != nil {
			if errors.Is(err, schedule.ErrSlotAlreadyBooked) || errors.Is(err, schedule.ErrSlotNotFound) {
				return fmt.Errorf("%w: %w", ErrSlotUnavailable, err)
			}
			return fmt.Errorf("reserve slot: %w", err)
		}

		holdExpiresAt := s.now().Add(s.holdTTL)
		appt, err := s.repo.CreatePending(lockCtx, Appointment{
			DoctorID:      doctorID,
			PatientID:     patientID,
			DatetimeUTC:   instant,
			LocalDate:     localDate,
			LocalTime:     localTime,
			Reason:        reason,
			HoldExpiresAt: &holdExpiresAt,
		})
		if err != nil {
			s.releaseSlot(lockCtx, doctorID, localDate, localTime)
			return fmt.Errorf("create pending appointment: %w", err)
		}

		code, err = s.otp.Issue(lockCtx, appt.ID, patient.Phone)
		if err != nil {
			// Roll back so a failed issuance never strands a reserved slot.
			s.releaseSlot(lockCtx, doctorID, localDate, localTime)
			if delErr := s.repo.Delete(lockCtx, appt.ID); delErr != nil {
				s.logger.Error().Err(delErr).
					Str("appointment_id", appt.ID.String()).
					Msg("rollback delete failed")
			}
			return fmt.Errorf("issue otp: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"doctor_id":       doctorID.String(),
			"patient_id":      patientID.String(),
			"local_date":      localDate,
			"local_time":      localTime,
			"hold_expires_at": holdExpiresAt,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.RecordBooking("contended")
			return nil, "", ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.RecordBooking("conflict")
		} else {
			s.metrics.RecordBooking("error")
		}
		return nil, "", err
	}

	s.metrics.RecordBooking("ok")
	return created, code, nil
}

// Confirm verifies the OTP code and moves pending -> confirmed. OTP failures
// are reported as-is; an expired hold is the sweeper's business, not
// confirm's.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, code string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusPending {
		return nil, ErrInvalidStatusTransition
	}

	if err := s.otp.Verify(ctx, id, code); err != nil {
		return nil, err
	}

	updated, err := s.repo.MarkConfirmed(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost the CAS to a concurrent cancel or sweep.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{})

	return updated, nil
}

// Cancel moves a non-terminal appointment to cancelled and frees its slot.
// The slot is released before the status write: a stuck booked slot is the
// worse failure, so availability wins over strict bookkeeping.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role == RolePatient && actor.ID != appt.PatientID {
		return nil, ErrForbidden
	}

	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	s.releaseSlot(ctx, appt.DoctorID, appt.LocalDate, appt.LocalTime)

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if err := s.otp.Clear(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", id.String()).Msg("clear otp on cancel failed")
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": actor.Role,
	})

	return updated, nil
}

// Complete closes out care for a confirmed appointment. Doctor-only; the
// slot stays consumed historically.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	if actor.Role != RoleDoctor && actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}

	updated, err := s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			if _, getErr := s.repo.GetAppointmentByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{
		"actor_id": actor.ID.String(),
	})

	return updated, nil
}

// ResendOTP issues a fresh code for a still-pending appointment, subject to
// the resend cooldown.
func (s *Service) ResendOTP(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}
	if appt.Status != StatusPending {
		return ErrInvalidStatusTransition
	}

	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	if _, err := s.otp.Issue(ctx, id, patient.Phone); err != nil {
		return err
	}

	s.logEvent(ctx, id, EventOTPResent, map[string]any{})
	return nil
}

// ExpireStalePending is the sweep entry point, called periodically by the
// worker. Each stale appointment is handled independently; one failure is
// logged and skipped, never fatal to the batch. Safe under overlapping runs:
// release is idempotent and the status CAS no-ops on rows already swept.
func (s *Service) ExpireStalePending(ctx context.Context) error {
	now := s.now()
	stale, err := s.repo.FindExpiredPending(ctx, now, s.sweepBatch)
	if err != nil {
		return fmt.Errorf("find expired pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range stale {
		s.releaseSlot(ctx, appt.DoctorID, appt.LocalDate, appt.LocalTime)

		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusExpired); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).
					Str("appointment_id", appt.ID.String()).
					Msg("failed to expire appointment")
			}
			continue
		}

		if err := s.otp.Clear(ctx, appt.ID); err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("clear otp on expiry failed")
		}

		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
			"reason": "hold_expired",
		})
		expired++
	}

	s.metrics.RecordExpired(expired)
	s.metrics.RecordSweepRun()

	if expired > 0 {
		s.logger.Info().Int("expired", expired).Int("candidates", len(stale)).Msg("sweep complete")
	}

	return nil
}

// ListAvailableSlots returns the free local start times for a doctor's date.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, localDate string) ([]string, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.calendar.ListAvailable(ctx, doctorID, localDate)
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// releaseSlot frees a slot on the cancel/expiry/rollback paths. A missing
// grid is logged and swallowed; these paths must converge, not fail.
func (s *Service) releaseSlot(ctx context.Context, doctorID uuid.UUID, localDate, localTime string) {
	if err := s.calendar.Release(ctx, doctorID, localDate, localTime); err != nil {
		s.logger.Warn().Err(err).
			Str("doctor_id", doctorID.String()).
			Str("date", localDate).
			Str("time", localTime).
			Msg("slot release failed")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("marshal event payload failed")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log failed")
	}
}
