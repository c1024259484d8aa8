package llm

import (
	"time"

	"github.com/okian/evalboard/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every model call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps requests per second per provider. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rps
		if burst > 0 {
			c.burst = burst
		}
	}
}

// WithMiddleware appends middlewares inside the built-in chain, closest to the provider.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
