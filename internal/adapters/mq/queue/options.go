package queue

import (
	"time"

	"github.com/okian/evalboard/pkg/logger"
)

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the task channel.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}

// RedisOption applies a configuration option to the RedisQueue.
type RedisOption func(*RedisQueue)

// WithKey sets the list key.
func WithKey(key string) RedisOption {
	return func(q *RedisQueue) {
		if key != "" {
			q.key = key
		}
	}
}

// WithRedisCapacity caps the list length accepted by Enqueue.
func WithRedisCapacity(capacity int) RedisOption {
	return func(q *RedisQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPopTimeout sets how long one BRPOP call blocks.
func WithPopTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.popTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the Redis queue.
func WithLogger(l logger.Logger) RedisOption {
	return func(q *RedisQueue) {
		if l != nil {
			q.logger = l
		}
	}
}
