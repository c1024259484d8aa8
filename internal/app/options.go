package service

import (
	"github.com/okian/evalboard/internal/adapters/mq/barrier"
	"github.com/okian/evalboard/internal/adapters/mq/queue"
	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the default in-memory queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithQueue replaces the default in-memory queue, e.g. with a Redis queue.
func WithQueue(q queue.Queue) Option {
	return func(s *Service) {
		if q != nil {
			s.queue = q
		}
	}
}

// WithTracker replaces the default in-memory barrier tracker.
func WithTracker(t barrier.Tracker) Option {
	return func(s *Service) {
		if t != nil {
			s.tracker = t
		}
	}
}

// WithRaters sets the rater names per question type.
func WithRaters(r model.RaterSet) Option {
	return func(s *Service) {
		if r != nil {
			s.raters = r
		}
	}
}

// WithDefaultCriteria overrides the built-in criteria used when no setting row exists.
func WithDefaultCriteria(c map[model.QuestionType]string) Option {
	return func(s *Service) {
		for t, v := range c {
			if v != "" {
				s.defaultCriteria[t] = v
			}
		}
	}
}

// WithDefaultScoreCeiling sets the ceiling used when no setting row exists.
func WithDefaultScoreCeiling(ceiling float64) Option {
	return func(s *Service) {
		if ceiling > 0 {
			s.defaultCeiling = ceiling
		}
	}
}

// WithSchedule sets the cron spec for recurring full regeneration. Empty disables it.
func WithSchedule(spec string) Option {
	return func(s *Service) {
		s.schedule = spec
	}
}

// WithScorer replaces the retrying scorer.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) {
		if sc != nil {
			s.scorer = sc
		}
	}
}

// WithScorerOptions configures the default retrying scorer.
func WithScorerOptions(opts ...scoring.Option) Option {
	return func(s *Service) {
		s.scorerOpts = append(s.scorerOpts, opts...)
	}
}

// WithLeaderboardOptions configures the aggregation engine.
func WithLeaderboardOptions(opts ...leaderboard.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithDeduper replaces the in-flight guard for queued question regenerations.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.inFlight = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
