package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// RunHandler lets an operator start an episode run on demand.
type RunHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{}
}

// NewRunHandler creates a RunHandler. Each accepted request performs a
// non-blocking send on triggerCh; the run loop receives from it.
func NewRunHandler(triggerCh chan<- struct{}, logger *slog.Logger) *RunHandler {
	return &RunHandler{triggerCh: triggerCh, logger: logger}
}

// TriggerRun enqueues one run. A trigger that is still pending absorbs the
// request.
// POST /api/runs
func (h *RunHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "runs are not enabled in this mode")
		return
	}
	queued := true
	select {
	case h.triggerCh <- struct{}{}:
	default:
		queued = false
	}
	h.logger.InfoContext(r.Context(), "handler: run trigger requested", slog.Bool("queued", queued))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
