// Package jobs runs scheduled maintenance work on a cron scheduler.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is a named unit of scheduled work. A positive timeout bounds each run.
type Job struct {
	name    string
	run     func(ctx context.Context) error
	timeout time.Duration
}

// NewJob returns a Job that executes run on each trigger.
func NewJob(name string, run func(ctx context.Context) error, timeout time.Duration) Job {
	return Job{name: name, run: run, timeout: timeout}
}

// Run executes the job once, applying its timeout.
func (j Job) Run(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	return j.run(ctx)
}

// Scheduler wraps gocron with structured logging per run.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLogger(&gocronLoggerAdapter{logger: logger.Sugar()}),
	)
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: scheduler, logger: logger}, nil
}

// RegisterCronJob schedules job on the given cron expression. Overlapping
// runs are rescheduled rather than stacked.
func (s *Scheduler) RegisterCronJob(cron string, job Job) error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(cron, false),
		gocron.NewTask(s.runFunc(job)),
		gocron.WithName(job.name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

func (s *Scheduler) runFunc(job Job) func(ctx context.Context) {
	return func(ctx context.Context) {
		log := s.logger.With(zap.String("job", job.name))
		startedAt := time.Now()
		log.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(startedAt)
		if err != nil {
			log.Warn("job failed", zap.Duration("elapsed", elapsed), zap.Error(err))
			return
		}
		log.Info("job finished", zap.Duration("elapsed", elapsed))
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("job scheduler starting", zap.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

func (s *Scheduler) Shutdown() error {
	s.logger.Info("job scheduler shutting down")
	return s.scheduler.Shutdown()
}

type gocronLoggerAdapter struct {
	logger *zap.SugaredLogger
}

func (a *gocronLoggerAdapter) Debug(msg string, args ...any) { a.logger.Debugw(msg, args...) }
func (a *gocronLoggerAdapter) Error(msg string, args ...any) { a.logger.Errorw(msg, args...) }
func (a *gocronLoggerAdapter) Info(msg string, args ...any)  { a.logger.Infow(msg, args...) }
func (a *gocronLoggerAdapter) Warn(msg string, args ...any)  { a.logger.Warnw(msg, args...) }
