package otp

import (
	"time"

	"github.com/google/uuid"
)

// Challenge is the stored half of a one-time passcode bound to a single
// appointment. Only the bcrypt hash of the code is persisted; CodeHash is
// empty once the code has been used.
type Challenge struct {
	AppointmentID uuid.UUID
	Contact       string
	Purpose       string
	CodeHash      string
	ExpiresAt     time.Time
	AttemptCount  int
	LastSentAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const PurposeConfirmAppointment = "confirm_appointment"
