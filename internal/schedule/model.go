package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Slot is one bookable 30-minute unit of a doctor's day. Start times are
// local wall-clock "HH:mm" strings; the owning date is a local "YYYY-MM-DD"
// calendar date.
type Slot struct {
	DoctorID  uuid.UUID
	LocalDate string
	StartTime string
	IsBooked  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DoctorSchedule is the full grid for one doctor on one calendar date,
// slots ordered by start time.
type DoctorSchedule struct {
	DoctorID  uuid.UUID
	LocalDate string
	Slots     []Slot
}
