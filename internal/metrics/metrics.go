package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	BookingsTotal         *prometheus.CounterVec
	OTPIssuedTotal        prometheus.Counter
	OTPVerificationsTotal *prometheus.CounterVec
	AppointmentsExpired   prometheus.Counter
	SweepRunsTotal        prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		BookingsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_appointments_created_total",
			Help: "Appointment creation attempts by result",
		}, []string{"result"}),
		OTPIssuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_otp_issued_total",
			Help: "OTP codes issued, including resends",
		}),
		OTPVerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_otp_verifications_total",
			Help: "OTP verification attempts by result",
		}, []string{"result"}),
		AppointmentsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_appointments_expired_total",
			Help: "Pending appointments expired by the sweeper",
		}),
		SweepRunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "booking_sweep_runs_total",
			Help: "Completed expiry sweep runs",
		}),
	}
}

// Nil-safe increment helpers so services can run without metrics wired (tests).

func (m *Metrics) RecordBooking(result string) {
	if m == nil {
		return
	}
	m.BookingsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordOTPIssued() {
	if m == nil {
		return
	}
	m.OTPIssuedTotal.Inc()
}

func (m *Metrics) RecordOTPVerification(result string) {
	if m == nil {
		return
	}
	m.OTPVerificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AppointmentsExpired.Add(float64(n))
}

func (m *Metrics) RecordSweepRun() {
	if m == nil {
		return
	}
	m.SweepRunsTotal.Inc()
}
