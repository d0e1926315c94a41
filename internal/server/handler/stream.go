package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// StreamReader reads a durable bus stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// StreamHandler serves the step reward history for clients that poll
// instead of holding a WebSocket open.
type StreamHandler struct {
	bus    StreamReader
	stream string
	logger *slog.Logger
}

// NewStreamHandler creates a StreamHandler over stream.
func NewStreamHandler(bus StreamReader, stream string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, stream: stream, logger: logger}
}

type streamEntry struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// ListRewards returns up to count entries after the given stream ID. Pass
// the last returned ID as after to resume.
// GET /api/rewards?after=0-0&count=100
func (h *StreamHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after := q.Get("after")
	if after == "" {
		after = "0-0"
	}
	count := 100
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		count = min(n, maxLimit)
	}

	msgs, err := h.bus.StreamRead(r.Context(), h.stream, after, count)
	if err != nil {
		writeServiceError(w, r, h.logger, "read rewards", err)
		return
	}
	entries := make([]streamEntry, 0, len(msgs))
	next := after
	for _, m := range msgs {
		data := json.RawMessage(m.Payload)
		if !json.Valid(data) {
			data, _ = json.Marshal(string(m.Payload))
		}
		entries = append(entries, streamEntry{ID: m.ID, Data: data})
		next = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"next":  next,
	})
}
