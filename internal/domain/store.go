package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// EpisodeStore persists episode summaries.
type EpisodeStore interface {
	Create(ctx context.Context, ep Episode) error
	Finish(ctx context.Context, ep Episode) error
	GetByID(ctx context.Context, id string) (Episode, error)
	List(ctx context.Context, opts ListOpts) ([]Episode, error)
	ListByRun(ctx context.Context, runID string) ([]Episode, error)
}

// StepStore persists per-step reward results.
type StepStore interface {
	InsertBatch(ctx context.Context, steps []StepResult) error
	ListByEpisode(ctx context.Context, episodeID string, opts ListOpts) ([]StepResult, error)
}

// TradeStore persists simulated trades.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByEpisode(ctx context.Context, episodeID string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
