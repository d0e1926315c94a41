package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// StepStore implements domain.StepStore using PostgreSQL.
type StepStore struct {
	pool *pgxpool.Pool
}

// NewStepStore creates a new StepStore backed by the given connection pool.
func NewStepStore(pool *pgxpool.Pool) *StepStore {
	return &StepStore{pool: pool}
}

// InsertBatch stores step results with COPY. Steps are written once per
// episode, after it finishes.
func (s *StepStore) InsertBatch(ctx context.Context, steps []domain.StepResult) error {
	if len(steps) == 0 {
		return nil
	}
	cols := []string{"episode_id", "step", "action", "price", "trades", "rel_rpnl", "reward", "position", "vwap", "net_worth", "ts"}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"step_results"}, cols,
		pgx.CopyFromSlice(len(steps), func(i int) ([]any, error) {
			r := steps[i]
			var vwap *float64
			if r.Position.HasVWAP {
				v := r.Position.VWAP
				vwap = &v
			}
			return []any{r.EpisodeID, r.Step, r.Action, r.Price, r.Trades, r.RelRPnL, r.Reward,
				r.Position.Position, vwap, r.NetWorth, r.Timestamp}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy step results: %w", err)
	}
	if int(n) != len(steps) {
		return fmt.Errorf("postgres: copied %d of %d step results", n, len(steps))
	}
	return nil
}

// ListByEpisode returns the steps of an episode in order.
func (s *StepStore) ListByEpisode(ctx context.Context, episodeID string, opts domain.ListOpts) ([]domain.StepResult, error) {
	q := newListQuery(`SELECT episode_id, step, action, price, trades, rel_rpnl, reward,
		position, vwap, net_worth, ts FROM step_results WHERE episode_id = $1`, episodeID).
		window("ts", opts).
		page("step ASC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list steps: %w", err)
	}
	defer rows.Close()

	var out []domain.StepResult
	for rows.Next() {
		var r domain.StepResult
		var vwap *float64
		if err := rows.Scan(&r.EpisodeID, &r.Step, &r.Action, &r.Price, &r.Trades, &r.RelRPnL, &r.Reward,
			&r.Position.Position, &vwap, &r.NetWorth, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan step: %w", err)
		}
		if vwap != nil {
			r.Position.VWAP, r.Position.HasVWAP = *vwap, true
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list steps rows: %w", err)
	}
	return out, nil
}
