package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medisched/clinic-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	LocalDate string `json:"local_date"`
	LocalTime string `json:"local_time"`
	Reason    string `json:"reason"`
}

type ConfirmAppointmentRequest struct {
	Code string `json:"code"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	LocalDate     string     `json:"local_date"`
	LocalTime     string     `json:"local_time"`
	DatetimeUTC   time.Time  `json:"datetime_utc"`
	Reason        string     `json:"reason,omitempty"`
	Status        string     `json:"status"`
	Verified      bool       `json:"verified"`
	HoldExpiresAt *time.Time `json:"hold_expires_at,omitempty"`

	// DebugOTP is populated only in dev environments so local tooling can
	// drive the confirm flow without an SMS gateway.
	DebugOTP string `json:"debug_otp,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	DoctorName  string `json:"doctor_name,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
}

type AvailableSlotsResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	LocalDate string    `json:"local_date"`
	Times     []string  `json:"times"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		LocalDate:     a.LocalDate,
		LocalTime:     a.LocalTime,
		DatetimeUTC:   a.DatetimeUTC,
		Reason:        a.Reason,
		Status:        string(a.Status),
		Verified:      a.Verified,
		HoldExpiresAt: a.HoldExpiresAt,
	}
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
	}
	if d.Doctor != nil {
		resp.DoctorName = d.Doctor.Name
	}
	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
	}
	return resp
}
