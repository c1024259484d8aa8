package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// SnapshotView is a decoded snapshot.
type SnapshotView struct {
	ID         int64                  `json:"id"`
	CreatedAt  time.Time              `json:"created_at"`
	Metadata   model.SnapshotMetadata `json:"metadata"`
	Dimensions []types.DimensionRef   `json:"dimensions"`
	Rows       []types.Row            `json:"rows"`
}

// SaveSnapshot appends an immutable snapshot of the given rows and dimensions.
func (s *Service) SaveSnapshot(ctx context.Context, dims []types.DimensionRef, rows []types.Row, meta model.SnapshotMetadata) (model.Snapshot, error) {
	if meta.Trigger != model.TriggerAuto && meta.Trigger != model.TriggerManual {
		return model.Snapshot{}, fmt.Errorf("%w: %q", ErrInvalidTrigger, meta.Trigger)
	}
	if dims == nil {
		dims = []types.DimensionRef{}
	}
	if rows == nil {
		rows = []types.Row{}
	}
	dimJSON, err := json.Marshal(dims)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("encode snapshot dimensions: %w", err)
	}
	rowJSON, err := json.Marshal(rows)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("encode snapshot rows: %w", err)
	}
	snap, err := s.store.InsertSnapshot(ctx, model.Snapshot{
		Dimensions: dimJSON,
		Rows:       rowJSON,
		Metadata:   meta,
	})
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	metrics.RecordSnapshotSaved(string(meta.Trigger))
	s.logger.Info(ctx, "snapshot saved",
		logger.Int64("snapshot_id", snap.ID),
		logger.String("trigger", string(meta.Trigger)),
		logger.String("source", meta.Source),
	)
	return snap, nil
}

// CaptureSnapshot computes the live leaderboard and saves it with corpus counts.
func (s *Service) CaptureSnapshot(ctx context.Context, trigger model.Trigger, source, batchID string) (model.Snapshot, error) {
	lb, err := s.engine.Compute(ctx, s.raters.Names(), leaderboard.SortAvgScore, leaderboard.OrderDesc)
	if err != nil {
		return model.Snapshot{}, err
	}
	questions, err := s.store.Questions(ctx)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("count questions: %w", err)
	}
	scoreThreshold, rateThreshold := thresholds(lb.Rows)
	return s.SaveSnapshot(ctx, lb.Dimensions, lb.Rows, model.SnapshotMetadata{
		SubjectCount:   len(lb.Rows),
		DimensionCount: len(lb.Dimensions),
		QuestionCount:  len(questions),
		Trigger:        trigger,
		Source:         source,
		BatchID:        batchID,
		ScoreThreshold: scoreThreshold,
		RateThreshold:  rateThreshold,
	})
}

// thresholds are the mean weighted score and mean response rate over rows.
func thresholds(rows []types.Row) (float64, float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	var score, rate float64
	for _, r := range rows {
		score += r.AvgScore
		rate += r.ResponseRate
	}
	n := float64(len(rows))
	return score / n, rate / n
}

// ListSnapshots returns snapshots newest first. A zero day lists all of them.
func (s *Service) ListSnapshots(ctx context.Context, day time.Time) ([]model.Snapshot, error) {
	return s.store.ListSnapshots(ctx, repository.SnapshotFilter{Day: day})
}

// GetSnapshot decodes a snapshot. With sortBy set the stored rows are re-ordered;
// values, ranks included, are returned exactly as stored.
func (s *Service) GetSnapshot(ctx context.Context, id int64, sortBy, sortOrder string) (SnapshotView, error) {
	snap, err := s.store.GetSnapshot(ctx, id)
	if err != nil {
		return SnapshotView{}, err
	}
	view := SnapshotView{ID: snap.ID, CreatedAt: snap.CreatedAt, Metadata: snap.Metadata}
	if err := json.Unmarshal(snap.Dimensions, &view.Dimensions); err != nil {
		return SnapshotView{}, fmt.Errorf("decode snapshot %d dimensions: %w", id, err)
	}
	if err := json.Unmarshal(snap.Rows, &view.Rows); err != nil {
		return SnapshotView{}, fmt.Errorf("decode snapshot %d rows: %w", id, err)
	}
	if sortBy != "" || sortOrder != "" {
		leaderboard.ResolveSort(sortBy, sortOrder, view.Dimensions).Apply(view.Rows)
	}
	return view, nil
}

// DeleteSnapshot removes a snapshot.
func (s *Service) DeleteSnapshot(ctx context.Context, id int64) error {
	if err := s.store.DeleteSnapshot(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "snapshot deleted", logger.Int64("snapshot_id", id))
	return nil
}
