package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

const (
	defaultRedisKey   = "evalboard:tasks"
	defaultPopTimeout = time.Second
)

// RedisQueue keeps tasks in a Redis list: LPUSH on enqueue, BRPOP on dequeue.
// Several processes sharing the same key share one backlog.
type RedisQueue struct {
	client     redis.UniversalClient
	key        string
	capacity   int
	popTimeout time.Duration
	logger     logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRedisQueue creates a queue over an existing client.
func NewRedisQueue(client redis.UniversalClient, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client:     client,
		key:        defaultRedisKey,
		capacity:   defaultQueueCapacity,
		popTimeout: defaultPopTimeout,
		logger:     logger.Get().Named("redis-queue"),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueCapacity(q.capacity)
	return q
}

// Enqueue pushes a task unless the list already holds capacity tasks.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if q.IsClosed() {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrQueueClosed
	}
	size, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "redis_error")
		return fmt.Errorf("queue length: %w", err)
	}
	if int(size) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return ErrQueueFull
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "redis_error")
		return fmt.Errorf("push task: %w", err)
	}
	metrics.RecordQueueEnqueue()
	q.observe(int(size) + 1)
	return nil
}

// Dequeue polls the list with BRPOP until ctx ends or the queue is closed.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan Task {
	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			default:
			}
			res, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.logger.Warn(ctx, "pop task failed", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "redis_error")
				select {
				case <-time.After(q.popTimeout):
				case <-ctx.Done():
					return
				}
				continue
			}
			// res is [key, value]
			var t Task
			if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
				q.logger.Error(ctx, "dropping undecodable task", logger.Error(err))
				metrics.RecordErrorByComponent("queue", "decode_error")
				continue
			}
			select {
			case out <- t:
				metrics.RecordQueueDequeue()
			case <-ctx.Done():
				// Put it back so another consumer picks it up.
				if err := q.client.RPush(context.Background(), q.key, res[1]).Err(); err != nil {
					q.logger.Error(ctx, "requeue on shutdown failed", logger.String("task_id", t.ID), logger.Error(err))
				}
				return
			}
		}
	}()
	return out
}

// Len returns the list length, or 0 when Redis is unreachable.
func (q *RedisQueue) Len(ctx context.Context) int {
	size, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		q.logger.Warn(ctx, "queue length failed", logger.Error(err))
		return 0
	}
	q.observe(int(size))
	return int(size)
}

func (q *RedisQueue) observe(size int) {
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting tasks. Queued tasks stay in Redis for the next consumer.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *RedisQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
