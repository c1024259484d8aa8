package scoring

import (
	"time"

	"github.com/okian/evalboard/pkg/logger"
)

// Option applies a configuration option to the RetryingScorer.
type Option func(*RetryingScorer)

// WithRetries sets how many attempts each rater gets.
func WithRetries(n int) Option {
	return func(s *RetryingScorer) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithAttemptTimeout bounds each rater call. A timed-out call is a failed attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *RetryingScorer) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// WithResponsiveBand sets the closed interval treated as a non-responsive score.
func WithResponsiveBand(low, high float64) Option {
	return func(s *RetryingScorer) {
		if low <= high {
			s.bandLow = low
			s.bandHigh = high
		}
	}
}

// WithConcurrency caps how many raters are queried at once for one answer.
func WithConcurrency(n int) Option {
	return func(s *RetryingScorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets a custom logger for the scorer.
func WithLogger(l logger.Logger) Option {
	return func(s *RetryingScorer) {
		if l != nil {
			s.logger = l
		}
	}
}
