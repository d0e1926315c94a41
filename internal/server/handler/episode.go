package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// EpisodeQuery is the read side the episode endpoints need. It is declared
// locally so the handler package does not depend on the service package.
type EpisodeQuery interface {
	ListEpisodes(ctx context.Context, opts domain.ListOpts) ([]domain.Episode, error)
	ListRun(ctx context.Context, runID string) ([]domain.Episode, error)
	GetEpisode(ctx context.Context, id string) (domain.Episode, error)
	ListSteps(ctx context.Context, episodeID string, opts domain.ListOpts) ([]domain.StepResult, error)
	ListTrades(ctx context.Context, episodeID string, opts domain.ListOpts) ([]domain.Trade, error)
	LatestPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// EpisodeHandler serves episode results, their step rewards and trades.
type EpisodeHandler struct {
	query  EpisodeQuery
	logger *slog.Logger
}

// NewEpisodeHandler creates an EpisodeHandler.
func NewEpisodeHandler(query EpisodeQuery, logger *slog.Logger) *EpisodeHandler {
	return &EpisodeHandler{query: query, logger: logger}
}

// ListEpisodes returns recent episodes, newest first.
// GET /api/episodes?limit=50&offset=0&since=...&until=...
func (h *EpisodeHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eps, err := h.query.ListEpisodes(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list episodes", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(eps, opts))
}

// ListRun returns the episodes of one run in order.
// GET /api/runs/{id}
func (h *EpisodeHandler) ListRun(w http.ResponseWriter, r *http.Request) {
	eps, err := h.query.ListRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list run", err)
		return
	}
	if len(eps) == 0 {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(eps, domain.ListOpts{Limit: len(eps)}))
}

// GetEpisode returns one episode summary.
// GET /api/episodes/{id}
func (h *EpisodeHandler) GetEpisode(w http.ResponseWriter, r *http.Request) {
	ep, err := h.query.GetEpisode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get episode", err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

// ListSteps returns the per-step rewards of an episode.
// GET /api/episodes/{id}/steps
func (h *EpisodeHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	steps, err := h.query.ListSteps(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list steps", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(steps, opts))
}

// ListTrades returns the simulated trades of an episode.
// GET /api/episodes/{id}/trades
func (h *EpisodeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trades, err := h.query.ListTrades(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "list trades", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(trades, opts))
}

// LatestPrice returns the last mid price cached for a symbol.
// GET /api/prices/{symbol}
func (h *EpisodeHandler) LatestPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	price, ts, err := h.query.LatestPrice(r.Context(), symbol)
	if err != nil {
		writeServiceError(w, r, h.logger, "latest price", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"price":     price,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
	})
}
