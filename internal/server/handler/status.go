package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/tradereward/internal/reward"
)

// StatusHandler reports how the backend is configured.
type StatusHandler struct {
	Mode       string
	Agent      string
	Scheme     string
	Thresholds reward.Thresholds
	StartedAt  time.Time
}

// GetStatus responds with the mode, agent and reward settings.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"agent":          h.Agent,
		"reward_scheme":  h.Scheme,
		"thresholds":     h.Thresholds,
		"profit_trigger": h.Thresholds.ProfitTrigger(),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}
