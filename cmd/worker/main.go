// Worker runs scheduled maintenance: purging expired verification codes and
// settled email-change records. Set CLEANUP_CRON to control the schedule.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"snaplink/backend/internal/config"
	"snaplink/backend/internal/db"
	changerepo "snaplink/backend/internal/emailchange/repository"
	"snaplink/backend/internal/jobs"
	twofactorrepo "snaplink/backend/internal/twofactor/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	profiles := twofactorrepo.NewPostgresRepository(conn)
	changes := changerepo.NewPostgresRepository(conn)

	scheduler, err := jobs.NewScheduler(logger)
	if err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	timeout := cfg.CleanupTimeoutDuration()
	if err := scheduler.RegisterCronJob(cfg.CleanupCron,
		jobs.NewExpiredChallengeCleanup(profiles, logger, timeout)); err != nil {
		logger.Fatal("register challenge cleanup", zap.Error(err))
	}
	if err := scheduler.RegisterCronJob(cfg.CleanupCron,
		jobs.NewStaleEmailChangeCleanup(changes, logger, timeout)); err != nil {
		logger.Fatal("register email change cleanup", zap.Error(err))
	}

	scheduler.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("worker: shutting down...")
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown", zap.Error(err))
	}
	logger.Info("worker: stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
