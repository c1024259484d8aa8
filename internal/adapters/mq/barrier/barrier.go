// Package barrier counts terminal completions of a batch of tasks and fires a
// callback exactly once when the last one lands, whether children succeeded or not.
package barrier

import (
	"context"
	"fmt"

	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Batch identifies one fan-out.
type Batch struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Tracker stores pending counts. Done must report fired for exactly one caller per batch.
type Tracker interface {
	// Open registers a batch with n pending children.
	Open(ctx context.Context, b Batch, n int) error
	// Add grows a batch by n nested children. Call it before the parent's own Done.
	Add(ctx context.Context, id string, n int) error
	// Done records one terminal child. fired is true for the call that drained the batch.
	Done(ctx context.Context, id string) (b Batch, fired bool, err error)
	// Open batches still waiting on children.
	Pending(ctx context.Context) (int, error)
}

// Callback runs once per drained batch.
type Callback func(ctx context.Context, b Batch)

// Barrier pairs a Tracker with the completion callback.
type Barrier struct {
	tracker  Tracker
	callback Callback
	logger   logger.Logger
}

// New creates a barrier. A nil callback only logs.
func New(tracker Tracker, callback Callback, opts ...Option) *Barrier {
	b := &Barrier{
		tracker:  tracker,
		callback: callback,
		logger:   logger.Get().Named("barrier"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open starts a batch with n children.
func (b *Barrier) Open(ctx context.Context, batch Batch, n int) error {
	if n < 1 {
		return ErrEmptyBatch
	}
	if err := b.tracker.Open(ctx, batch, n); err != nil {
		return fmt.Errorf("open batch %s: %w", batch.ID, err)
	}
	metrics.RecordBarrierOpened()
	b.logger.Debug(ctx, "batch opened", logger.String("batch_id", batch.ID), logger.Int("children", n))
	return nil
}

// Add grows an open batch.
func (b *Barrier) Add(ctx context.Context, id string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := b.tracker.Add(ctx, id, n); err != nil {
		return fmt.Errorf("grow batch %s: %w", id, err)
	}
	return nil
}

// Done marks one child terminal and runs the callback when it was the last one.
func (b *Barrier) Done(ctx context.Context, id string) error {
	batch, fired, err := b.tracker.Done(ctx, id)
	if err != nil {
		return fmt.Errorf("complete child of batch %s: %w", id, err)
	}
	if !fired {
		return nil
	}
	metrics.RecordBarrierFired()
	b.logger.Info(ctx, "batch complete", logger.String("batch_id", batch.ID), logger.String("source", batch.Source))
	if b.callback != nil {
		b.callback(ctx, batch)
	}
	return nil
}

// Pending reports open batches.
func (b *Barrier) Pending(ctx context.Context) (int, error) {
	return b.tracker.Pending(ctx)
}
