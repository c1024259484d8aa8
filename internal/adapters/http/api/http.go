// Package api exposes the leaderboard and its regeneration and snapshot
// operations as JSON over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/evalboard/internal/adapters/mq/queue"
	"github.com/okian/evalboard/internal/adapters/repository"
	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	LeaderboardDependencies
	RegenerateDependencies
	SnapshotDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	regenerateHandler  *RegenerateHandler
	snapshotHandler    *SnapshotHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		regenerateHandler:  NewRegenerateHandler(deps, logger.Get().Named("api")),
		snapshotHandler:    NewSnapshotHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", instrument(s.healthHandler.HandleHealth))
	mux.HandleFunc("GET /stats", instrument(s.statsHandler.HandleStats))
	mux.HandleFunc("GET /leaderboard", instrument(s.leaderboardHandler.HandleGetLeaderboard))
	mux.HandleFunc("GET /subjects/{id}", instrument(s.leaderboardHandler.HandleGetSubject))
	mux.HandleFunc("POST /regenerate/questions/{id}", instrument(s.regenerateHandler.HandleQuestion))
	mux.HandleFunc("POST /regenerate/subjects/{id}", instrument(s.regenerateHandler.HandleSubject))
	mux.HandleFunc("POST /regenerate/all", instrument(s.regenerateHandler.HandleAll))
	mux.HandleFunc("GET /snapshots", instrument(s.snapshotHandler.HandleList))
	mux.HandleFunc("POST /snapshots", instrument(s.snapshotHandler.HandleSave))
	mux.HandleFunc("GET /snapshots/{id}", instrument(s.snapshotHandler.HandleGet))
	mux.HandleFunc("DELETE /snapshots/{id}", instrument(s.snapshotHandler.HandleDelete))
}

// Read shapes returned by the API.
type (
	Leaderboard  = types.Leaderboard
	Row          = types.Row
	DimensionRef = types.DimensionRef
	Dispatch     = service.Dispatch
	SnapshotView = service.SnapshotView
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// snapshotSummary is the list shape; rows are only returned by the detail endpoint.
type snapshotSummary struct {
	ID        int64                  `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  model.SnapshotMetadata `json:"metadata"`
}

type subjectResponse struct {
	Row        Row            `json:"row"`
	Dimensions []DimensionRef `json:"dimensions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	tagCode(w, code)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure classifies err into a status and code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrRaterSubject), errors.Is(err, service.ErrInvalidTrigger):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, service.ErrAlreadyQueued):
		return http.StatusConflict, "already_queued"
	case errors.Is(err, ErrBackpressure), errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrNotStarted), errors.Is(err, queue.ErrQueueClosed):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, op string) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, WrapKind(op, ErrBadRequest, errors.New("id must be a positive integer"))
	}
	return id, nil
}
