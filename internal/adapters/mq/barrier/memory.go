package barrier

import (
	"context"
	"sync"
)

type entry struct {
	batch   Batch
	pending int
}

// MemoryTracker keeps counts in process memory.
type MemoryTracker struct {
	mu      sync.Mutex
	batches map[string]*entry
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{batches: map[string]*entry{}}
}

// Open registers a batch.
func (t *MemoryTracker) Open(_ context.Context, b Batch, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.batches[b.ID]; ok {
		return ErrBatchExists
	}
	t.batches[b.ID] = &entry{batch: b, pending: n}
	return nil
}

// Add grows a batch.
func (t *MemoryTracker) Add(_ context.Context, id string, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.batches[id]
	if !ok {
		return ErrUnknownBatch
	}
	e.pending += n
	return nil
}

// Done decrements a batch and forgets it once drained.
func (t *MemoryTracker) Done(_ context.Context, id string) (Batch, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.batches[id]
	if !ok {
		return Batch{}, false, ErrUnknownBatch
	}
	e.pending--
	if e.pending > 0 {
		return e.batch, false, nil
	}
	delete(t.batches, id)
	return e.batch, true, nil
}

// Pending counts open batches.
func (t *MemoryTracker) Pending(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.batches), nil
}
