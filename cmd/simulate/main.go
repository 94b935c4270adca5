package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medisched/clinic-booking/internal/db"
	"github.com/medisched/clinic-booking/internal/tz"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "simulate").Logger()

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	CancelRatio  float64
	PatientLimit int
	DoctorLimit  int
	DaysAhead    int
	PostgresDSN  string
}

type pendingBooking struct {
	ID   uuid.UUID
	Code string
}

// DataPool holds seeded ids plus bookings created during the run.
type DataPool struct {
	Patients []uuid.UUID
	Doctors  []uuid.UUID

	mu      sync.RWMutex
	pending []pendingBooking
}

func (dp *DataPool) AddPending(b pendingBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.pending = append(dp.pending, b)
}

func (dp *DataPool) TakeRandomPending() (pendingBooking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.pending) == 0 {
		return pendingBooking{}, false
	}
	idx := rand.Intn(len(dp.pending))
	b := dp.pending[idx]
	dp.pending = append(dp.pending[:idx], dp.pending[idx+1:]...)
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	Latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[len(latencies)*95/100]
	return avg, p50, p95
}

type Simulator struct {
	config SimConfig
	pool   *DataPool
	client *http.Client

	booking OperationMetrics
	confirm OperationMetrics
	cancel  OperationMetrics
	reads   OperationMetrics
}

func main() {
	logger.Info().Msg("simulator starting")

	cfg := loadConfig()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCtx()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	pool := &DataPool{}
	pool.Patients, err = loadIDs(ctx, pgPool, "patients", cfg.PatientLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load patients")
	}
	pool.Doctors, err = loadIDs(ctx, pgPool, "doctors", cfg.DoctorLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("load doctors")
	}

	if len(pool.Patients) == 0 || len(pool.Doctors) == 0 {
		logger.Fatal().Msg("no seed data, run cmd/seed first")
	}

	logger.Info().
		Int("patients", len(pool.Patients)).
		Int("doctors", len(pool.Doctors)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.4),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 50),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 7),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
	}
}

func (s *Simulator) Run() {
	deadline := time.Now().Add(s.config.Duration)

	var wg sync.WaitGroup
	for w := 0; w < s.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				s.step()
			}
		}()
	}
	wg.Wait()
}

func (s *Simulator) step() {
	roll := rand.Float64()
	switch {
	case roll < s.config.BookingRatio:
		s.doBook()
	case roll < s.config.BookingRatio+s.config.ConfirmRatio:
		s.doConfirm()
	case roll < s.config.BookingRatio+s.config.ConfirmRatio+s.config.CancelRatio:
		s.doCancel()
	default:
		s.doReadAvailability()
	}
}

func (s *Simulator) randomSlotRequest() (doctorID uuid.UUID, localDate, localTime string) {
	doctorID = s.pool.Doctors[rand.Intn(len(s.pool.Doctors))]

	day := time.Now().AddDate(0, 0, 1+rand.Intn(s.config.DaysAhead))
	localDate = day.Format(tz.DateLayout)

	times := []string{"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00"}
	localTime = times[rand.Intn(len(times))]
	return
}

func (s *Simulator) doBook() {
	doctorID, localDate, localTime := s.randomSlotRequest()
	patientID := s.pool.Patients[rand.Intn(len(s.pool.Patients))]

	body, _ := json.Marshal(map[string]string{
		"doctor_id":  doctorID.String(),
		"patient_id": patientID.String(),
		"local_date": localDate,
		"local_time": localTime,
		"reason":     "load test booking",
	})

	start := time.Now()
	status, respBody := s.post("/appointments", patientID, "patient", body)
	latency := time.Since(start)

	success := status == http.StatusCreated
	conflict := status == http.StatusConflict || status == http.StatusTooManyRequests
	s.booking.Record(latency, success, conflict)

	if success {
		var resp struct {
			ID       uuid.UUID `json:"id"`
			DebugOTP string    `json:"debug_otp"`
		}
		if err := json.Unmarshal(respBody, &resp); err == nil && resp.DebugOTP != "" {
			s.pool.AddPending(pendingBooking{ID: resp.ID, Code: resp.DebugOTP})
		}
	}
}

func (s *Simulator) doConfirm() {
	b, ok := s.pool.TakeRandomPending()
	if !ok {
		s.doReadAvailability()
		return
	}

	body, _ := json.Marshal(map[string]string{"code": b.Code})

	start := time.Now()
	status, _ := s.post(fmt.Sprintf("/appointments/%s/confirm", b.ID), uuid.Nil, "patient", body)
	latency := time.Since(start)

	s.confirm.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel() {
	b, ok := s.pool.TakeRandomPending()
	if !ok {
		s.doReadAvailability()
		return
	}

	start := time.Now()
	status, _ := s.post(fmt.Sprintf("/appointments/%s/cancel", b.ID), uuid.Nil, "admin", nil)
	latency := time.Since(start)

	s.cancel.Record(latency, status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadAvailability() {
	doctorID, localDate, _ := s.randomSlotRequest()

	url := fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.config.APIBaseURL, doctorID, localDate)

	start := time.Now()
	resp, err := s.client.Get(url)
	latency := time.Since(start)
	if err != nil {
		s.reads.Record(latency, false, false)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	s.reads.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func (s *Simulator) post(path string, principal uuid.UUID, role string, body []byte) (int, []byte) {
	req, err := http.NewRequest(http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if principal != uuid.Nil {
		req.Header.Set("X-Principal-ID", principal.String())
	}
	req.Header.Set("X-Principal-Role", role)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (s *Simulator) PrintReport() {
	report := func(name string, om *OperationMetrics) {
		avg, p50, p95 := om.Stats()
		logger.Info().
			Str("op", name).
			Int64("total", atomic.LoadInt64(&om.Total)).
			Int64("success", atomic.LoadInt64(&om.Success)).
			Int64("conflict", atomic.LoadInt64(&om.Conflict)).
			Int64("error", atomic.LoadInt64(&om.Error)).
			Dur("avg", avg).
			Dur("p50", p50).
			Dur("p95", p95).
			Msg("simulation result")
	}

	report("booking", &s.booking)
	report("confirm", &s.confirm)
	report("cancel", &s.cancel)
	report("availability", &s.reads)
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, table string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s LIMIT %d`, table, limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
