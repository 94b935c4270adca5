package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medisched/clinic-booking/internal/appointment"
	"github.com/medisched/clinic-booking/internal/config"
	"github.com/medisched/clinic-booking/internal/db"
	"github.com/medisched/clinic-booking/internal/metrics"
	"github.com/medisched/clinic-booking/internal/otp"
	redisclient "github.com/medisched/clinic-booking/internal/redis"
	"github.com/medisched/clinic-booking/internal/schedule"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "expiry-worker").Logger()
	logger.Info().Msg("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Int("batch", cfg.SweepBatchSize).
		Msg("configured")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	m := metrics.New()

	calendar := schedule.NewCalendar(schedule.NewPgRepository(pgPool), logger)
	otpSvc := otp.NewService(
		otp.NewPgRepository(pgPool),
		otp.LogSender{Logger: logger},
		cfg.OTPTTL,
		cfg.OTPMaxAttempts,
		cfg.OTPResendCooldown,
		m,
		logger,
	)
	// The sweeper never books, so it needs no distributed lock.
	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		calendar,
		otpSvc,
		redisclient.NoopLocker{},
		cfg.BusinessTZ,
		cfg.HoldTTL,
		cfg.SweepBatchSize,
		m,
		logger,
	)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExpireStalePending(runCtx); err != nil {
		logger.Error().Err(err).Msg("expiry run error")
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("expiry run complete")
}
