// Package service wires the evaluation engine: it owns the work queue, the
// worker pool, the fan-in barrier and the leaderboard engine, and implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/okian/evalboard/internal/adapters/mq/barrier"
	"github.com/okian/evalboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/evalboard/internal/adapters/mq/worker"
	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

var tracer = otel.Tracer("github.com/okian/evalboard/internal/app")

// Service implements the API dependencies for the evaluation engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	client   scoring.Client
	scorer   scoring.Scorer
	engine   *leaderboard.Engine
	queue    queue.Queue
	tracker  barrier.Tracker
	barrier  *barrier.Barrier
	pool     *workerpool.Pool
	inFlight dedupe.Deduper
	// pending counts holds per claimed question: the claim plus its queued units.
	pending   map[int64]int
	pendingMu sync.Mutex
	sched     *Scheduler
	reads     singleflight.Group

	// Configuration
	workerCount     int
	queueSize       int
	raters          model.RaterSet
	defaultCriteria map[model.QuestionType]string
	defaultCeiling  float64
	schedule        string
	scorerOpts      []scoring.Option
	engineOpts      []leaderboard.Option

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service over store, calling models through client.
func New(store repository.Store, client scoring.Client, opts ...Option) *Service {
	s := &Service{
		store:           store,
		client:          client,
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       10000,
		raters:          model.RaterSet{},
		defaultCriteria: map[model.QuestionType]string{},
		defaultCeiling:  scoring.DefaultScoreCeiling,
		pending:         map[int64]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.scorer == nil {
		s.scorer = scoring.NewRetryingScorer(client, s.scorerOpts...)
	}
	s.engine = leaderboard.New(store, s.engineOpts...)
	if s.inFlight == nil {
		s.inFlight = dedupe.NewInMemoryDeduper()
	}
	return s
}

// Start builds the queue, barrier and worker pool and begins consuming tasks.
// The pool runs until Stop; ctx only scopes startup.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting evaluation service...")

	if s.defaultCeiling != scoring.DefaultScoreCeiling {
		s.logger.Warn(ctx, "responsive band is not scaled with the score ceiling",
			logger.Float64("default_score_ceiling", s.defaultCeiling))
	}

	if s.queue == nil || s.queue.IsClosed() {
		s.queue = queue.NewInMemoryQueue(
			queue.WithCapacity(s.queueSize),
			queue.WithBufferSize(s.queueSize),
		)
	}
	if s.tracker == nil {
		s.tracker = barrier.NewMemoryTracker()
	}
	s.barrier = barrier.New(s.tracker, s.onBatchComplete)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = workerpool.NewPool(s.workerCount, s.queue, workerpool.HandlerFunc(s.Handle))
	s.pool.Start(runCtx)

	if s.schedule != "" {
		sched, err := NewScheduler(s.schedule, func(ctx context.Context) {
			if _, err := s.RegenerateAll(ctx, SourceSchedule); err != nil {
				s.logger.Error(ctx, "scheduled regeneration failed", logger.Error(err))
			}
		}, WithSchedulerLogger(s.logger.Named("scheduler")))
		if err != nil {
			cancel()
			_ = s.pool.Shutdown(ctx)
			return fmt.Errorf("schedule: %w", err)
		}
		sched.Start(runCtx)
		s.sched = sched
	}

	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.String("raters", strings.Join(s.raters.Names(), ",")),
	)
	return nil
}

// Stop stops the scheduler, drains the worker pool and cancels in-flight units.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping evaluation service...")

	if s.sched != nil {
		s.sched.Stop()
		s.sched = nil
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool did not stop cleanly", logger.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}

	s.started = false
	s.logger.Info(ctx, "evaluation service stopped")
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Raters returns the configured rater names by question type.
func (s *Service) Raters() model.RaterSet { return s.raters }

// Leaderboard computes the live leaderboard. Concurrent identical reads share
// one pass, which runs detached from any single caller's cancellation.
func (s *Service) Leaderboard(ctx context.Context, sortBy, sortOrder string) (types.Leaderboard, error) {
	key := sortBy + "|" + sortOrder
	shared := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(key, func() (any, error) {
		return s.engine.Compute(shared, s.raters.Names(), sortBy, sortOrder)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return types.Leaderboard{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return types.Leaderboard{}, res.Err
	}
	lb := res.Val.(types.Leaderboard)
	// Shared results must not alias between callers.
	rows := make([]types.Row, len(lb.Rows))
	copy(rows, lb.Rows)
	lb.Rows = rows
	return lb, nil
}

// SubjectRow returns one subject's live row and the level-1 dimension list.
func (s *Service) SubjectRow(ctx context.Context, subjectID int64) (types.Row, []types.DimensionRef, error) {
	if _, err := s.store.Subject(ctx, subjectID); err != nil {
		return types.Row{}, nil, err
	}
	lb, err := s.Leaderboard(ctx, leaderboard.SortAvgScore, leaderboard.OrderDesc)
	if err != nil {
		return types.Row{}, nil, err
	}
	for _, r := range lb.Rows {
		if r.SubjectID == subjectID {
			return r, lb.Dimensions, nil
		}
	}
	return types.Row{}, nil, fmt.Errorf("subject %d: %w", subjectID, ErrRaterSubject)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"inFlight":    s.inFlight.Size(),
		"raters":      s.raters.Names(),
	}
	if s.started {
		queueLen := s.queue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["processed"] = s.pool.Processed()
		if pending, err := s.barrier.Pending(ctx); err == nil {
			stats["pendingBatches"] = pending
		} else {
			s.logger.Warn(ctx, "pending batches unavailable", logger.Error(err))
		}
		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}
