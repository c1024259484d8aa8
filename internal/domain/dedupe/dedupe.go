// Package dedupe tracks keys of work that is queued but not yet dispatched, so
// the same question is not reset twice by overlapping requests.
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Default guard configuration constants.
const (
	defaultMaxSize = 50000
	defaultTTL     = time.Hour
)

// Deduper records in-flight keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key is in flight and records it if not.
	// Returns true if key was already recorded and has not expired.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord releases key once its work has been dispatched or abandoned.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps keys with their record time. Keys older than ttl count
// as released, which recovers from a worker that died while holding one.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    make(map[string]time.Time),
		maxSize: defaultMaxSize,
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord atomically checks and records key.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && !d.expired(at, now) {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.sweep(now)
		if len(d.seen) >= d.maxSize {
			d.evictOldest()
		}
	}
	d.seen[key] = now
	return false
}

// Unrecord releases key.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Size returns the number of live keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweep(d.now())
	return int64(len(d.seen))
}

func (d *inMemoryDeduper) expired(at, now time.Time) bool {
	return d.ttl > 0 && now.Sub(at) >= d.ttl
}

// sweep drops expired keys. Must be called with d.mu held.
func (d *inMemoryDeduper) sweep(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for k, at := range d.seen {
		if d.expired(at, now) {
			delete(d.seen, k)
		}
	}
}

// evictOldest drops the earliest recorded key. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, at := range d.seen {
		if !found || at.Before(oldestAt) {
			oldestKey, oldestAt, found = k, at, true
		}
	}
	if found {
		delete(d.seen, oldestKey)
	}
}
