package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/model"
)

// SnapshotDependencies defines the snapshot store operations.
type SnapshotDependencies interface {
	ListSnapshots(ctx context.Context, day time.Time) ([]model.Snapshot, error)
	CaptureSnapshot(ctx context.Context, trigger model.Trigger, source, batchID string) (model.Snapshot, error)
	GetSnapshot(ctx context.Context, id int64, sortBy, sortOrder string) (SnapshotView, error)
	DeleteSnapshot(ctx context.Context, id int64) error
}

// SnapshotHandler handles snapshot requests.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

type saveRequest struct {
	Source string `json:"source"`
}

// HandleList handles GET /snapshots?date=YYYY-MM-DD.
func (h *SnapshotHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_snapshots"
	var day time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, errors.New("date must be YYYY-MM-DD")))
			return
		}
		day = parsed
	}
	snaps, err := h.deps.ListSnapshots(r.Context(), day)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	out := make([]snapshotSummary, len(snaps))
	for i, s := range snaps {
		out[i] = snapshotSummary{ID: s.ID, CreatedAt: s.CreatedAt, Metadata: s.Metadata}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSave handles POST /snapshots. The body is optional and may name a source.
func (h *SnapshotHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	const op = "api.save_snapshot"
	req := saveRequest{Source: service.SourceOperator}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}
	if strings.TrimSpace(req.Source) == "" {
		req.Source = service.SourceOperator
	}
	snap, err := h.deps.CaptureSnapshot(r.Context(), model.TriggerManual, req.Source, "")
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, snapshotSummary{ID: snap.ID, CreatedAt: snap.CreatedAt, Metadata: snap.Metadata})
}

// HandleGet handles GET /snapshots/{id}?sort_by=&sort_order=.
func (h *SnapshotHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	id, err := pathID(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	q := r.URL.Query()
	view, err := h.deps.GetSnapshot(r.Context(), id, q.Get("sort_by"), q.Get("sort_order"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleDelete handles DELETE /snapshots/{id}.
func (h *SnapshotHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_snapshot"
	id, err := pathID(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := h.deps.DeleteSnapshot(r.Context(), id); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
