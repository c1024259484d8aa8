package api

import (
	"context"
	"net/http"

	service "github.com/okian/evalboard/internal/app"
	"github.com/okian/evalboard/pkg/logger"
)

// RegenerateDependencies defines the regeneration triggers.
type RegenerateDependencies interface {
	RegenerateQuestion(ctx context.Context, questionID int64) (Dispatch, error)
	RegenerateSubjectAll(ctx context.Context, subjectID int64) (Dispatch, error)
	RegenerateAll(ctx context.Context, source string) (Dispatch, error)
}

// RegenerateHandler accepts regeneration requests. Work runs asynchronously,
// so a successful request answers 202 with what was queued.
type RegenerateHandler struct {
	deps   RegenerateDependencies
	logger logger.Logger
}

// NewRegenerateHandler creates a new regeneration handler.
func NewRegenerateHandler(deps RegenerateDependencies, l logger.Logger) *RegenerateHandler {
	return &RegenerateHandler{deps: deps, logger: l}
}

// HandleQuestion handles POST /regenerate/questions/{id}.
func (h *RegenerateHandler) HandleQuestion(w http.ResponseWriter, r *http.Request) {
	const op = "api.regenerate_question"
	id, err := pathID(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	d, err := h.deps.RegenerateQuestion(r.Context(), id)
	h.respond(w, r, op, d, err)
}

// HandleSubject handles POST /regenerate/subjects/{id}.
func (h *RegenerateHandler) HandleSubject(w http.ResponseWriter, r *http.Request) {
	const op = "api.regenerate_subject"
	id, err := pathID(r, op)
	if err != nil {
		writeFailure(w, err)
		return
	}
	d, err := h.deps.RegenerateSubjectAll(r.Context(), id)
	h.respond(w, r, op, d, err)
}

// HandleAll handles POST /regenerate/all.
func (h *RegenerateHandler) HandleAll(w http.ResponseWriter, r *http.Request) {
	const op = "api.regenerate_all"
	d, err := h.deps.RegenerateAll(r.Context(), service.SourceRegenerateAll)
	h.respond(w, r, op, d, err)
}

func (h *RegenerateHandler) respond(w http.ResponseWriter, r *http.Request, op string, d Dispatch, err error) {
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	h.logger.Info(r.Context(), "regeneration accepted",
		logger.String("op", op),
		logger.String("batch_id", d.BatchID),
		logger.Int("questions", d.Questions),
		logger.Int("units", d.Units))
	writeJSON(w, http.StatusAccepted, d)
}
