package api

import (
	"context"
	"net/http"
)

// LeaderboardDependencies defines the interface for live leaderboard reads.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, sortBy, sortOrder string) (Leaderboard, error)
	SubjectRow(ctx context.Context, subjectID int64) (Row, []DimensionRef, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboard?sort_by=&sort_order= requests.
// Unknown sort keys fall back to the default order rather than failing.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()
	lb, err := h.deps.Leaderboard(r.Context(), q.Get("sort_by"), q.Get("sort_order"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// HandleGetSubject handles GET /subjects/{id} requests.
func (h *LeaderboardHandler) HandleGetSubject(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_subject"
	id, err := pathID(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	row, dims, err := h.deps.SubjectRow(r.Context(), id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, subjectResponse{Row: row, Dimensions: dims})
}
