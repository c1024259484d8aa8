package barrier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "evalboard:batch:"
	defaultTTL    = 7 * 24 * time.Hour
)

// Add only touches live batches.
var addScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -1
	end
	return redis.call('HINCRBY', KEYS[1], 'pending', ARGV[1])
`)

// Done decrements, and the caller that reaches zero deletes the batch and gets its source back.
var doneScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return {-1, ''}
	end
	local left = redis.call('HINCRBY', KEYS[1], 'pending', -1)
	if left > 0 then
		return {0, ''}
	end
	local source = redis.call('HGET', KEYS[1], 'source') or ''
	redis.call('DEL', KEYS[1])
	redis.call('SREM', KEYS[2], ARGV[1])
	return {1, source}
`)

// RedisTracker keeps counts in Redis hashes so workers in several processes share a batch.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisTracker creates a tracker. An empty prefix uses the default.
func NewRedisTracker(client redis.UniversalClient, prefix string) *RedisTracker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: defaultTTL}
}

func (t *RedisTracker) key(id string) string { return t.prefix + id }
func (t *RedisTracker) indexKey() string     { return t.prefix + "open" }

// Open registers a batch. Abandoned batches expire after a week.
func (t *RedisTracker) Open(ctx context.Context, b Batch, n int) error {
	ok, err := t.client.HSetNX(ctx, t.key(b.ID), "pending", n).Result()
	if err != nil {
		return fmt.Errorf("open batch: %w", err)
	}
	if !ok {
		return ErrBatchExists
	}
	_, err = t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, t.key(b.ID), "source", b.Source)
		p.Expire(ctx, t.key(b.ID), t.ttl)
		p.SAdd(ctx, t.indexKey(), b.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("open batch: %w", err)
	}
	return nil
}

// Add grows a batch.
func (t *RedisTracker) Add(ctx context.Context, id string, n int) error {
	left, err := addScript.Run(ctx, t.client, []string{t.key(id)}, n).Int64()
	if err != nil {
		return fmt.Errorf("grow batch: %w", err)
	}
	if left < 0 {
		return ErrUnknownBatch
	}
	return nil
}

// Done decrements a batch atomically.
func (t *RedisTracker) Done(ctx context.Context, id string) (Batch, bool, error) {
	res, err := doneScript.Run(ctx, t.client, []string{t.key(id), t.indexKey()}, id).Slice()
	if err != nil {
		return Batch{}, false, fmt.Errorf("complete child: %w", err)
	}
	if len(res) != 2 {
		return Batch{}, false, errors.New("unexpected barrier script reply")
	}
	state, _ := res[0].(int64)
	source, _ := res[1].(string)
	switch state {
	case -1:
		return Batch{}, false, ErrUnknownBatch
	case 1:
		return Batch{ID: id, Source: source}, true, nil
	default:
		return Batch{ID: id}, false, nil
	}
}

// Pending counts open batches.
func (t *RedisTracker) Pending(ctx context.Context) (int, error) {
	n, err := t.client.SCard(ctx, t.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count batches: %w", err)
	}
	return int(n), nil
}
