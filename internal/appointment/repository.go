package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the state machine.
// Status transitions are compare-and-set: the WHERE clause carries the
// expected current status so a concurrent writer loses cleanly instead of
// overwriting.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CreatePending inserts the appointment in pending status and returns the
	// stored row.
	CreatePending(ctx context.Context, appt Appointment) (*Appointment, error)

	// UpdateStatus performs the CAS transition from -> to. Returns
	// ErrAppointmentNotFound when no row matched (missing id or lost race).
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// MarkConfirmed is the pending -> confirmed CAS, also setting the
	// verified flag.
	MarkConfirmed(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Delete removes a row; used only to roll back a creation whose OTP
	// issuance failed.
	Delete(ctx context.Context, id uuid.UUID) error

	// FindExpiredPending returns up to limit pending appointments whose hold
	// expired before now, oldest first.
	FindExpiredPending(ctx context.Context, now time.Time, limit int) ([]Appointment, error)

	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
