package barrier

import "github.com/okian/evalboard/pkg/logger"

// Option applies a configuration option to the Barrier.
type Option func(*Barrier)

// WithLogger sets a custom logger for the barrier.
func WithLogger(l logger.Logger) Option {
	return func(b *Barrier) {
		if l != nil {
			b.logger = l
		}
	}
}
