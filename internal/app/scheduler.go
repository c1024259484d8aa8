package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/okian/evalboard/pkg/logger"
)

// DefaultSchedule runs a full regeneration every Sunday at midnight (seconds field first).
const DefaultSchedule = "0 0 0 * * 0"

// Scheduler runs a job on a cron spec. Overlapping runs are skipped.
type Scheduler struct {
	spec    string
	job     func(ctx context.Context)
	cron    *cron.Cron
	logger  logger.Logger
	running sync.Mutex
	timeout time.Duration
}

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets a custom logger for the scheduler.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJobTimeout bounds one run of the job. Zero means no bound.
func WithJobTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// NewScheduler validates spec and prepares the job.
func NewScheduler(spec string, job func(ctx context.Context), opts ...SchedulerOption) (*Scheduler, error) {
	if _, err := cron.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	s := &Scheduler{
		spec:   spec,
		job:    job,
		cron:   cron.New(),
		logger: logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the job and starts the cron loop. Runs use ctx as their parent.
func (s *Scheduler) Start(ctx context.Context) {
	if err := s.cron.AddFunc(s.spec, func() { s.Run(ctx) }); err != nil {
		// spec was validated in NewScheduler
		s.logger.Error(ctx, "schedule rejected", logger.String("spec", s.spec), logger.Error(err))
		return
	}
	s.cron.Start()
	s.logger.Info(ctx, "schedule started", logger.String("spec", s.spec))
}

// Run executes the job once unless a previous run is still going.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn(ctx, "previous scheduled run still active; skipping")
		return
	}
	defer s.running.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.logger.Info(ctx, "scheduled run starting")
	s.job(ctx)
}

// Stop halts the cron loop. A run already in progress finishes on its own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
