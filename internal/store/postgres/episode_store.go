package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// EpisodeStore implements domain.EpisodeStore using PostgreSQL.
type EpisodeStore struct {
	pool *pgxpool.Pool
}

// NewEpisodeStore creates a new EpisodeStore backed by the given connection pool.
func NewEpisodeStore(pool *pgxpool.Pool) *EpisodeStore {
	return &EpisodeStore{pool: pool}
}

const episodeSelectCols = `id, run_id, idx, symbol, agent, rpnl_threshold, reward_asymmetry,
	steps, trades, total_reward, total_rel_rpnl, final_net_worth, status, error,
	started_at, finished_at`

func scanEpisode(row pgx.Row) (domain.Episode, error) {
	var ep domain.Episode
	var status string
	err := row.Scan(
		&ep.ID, &ep.RunID, &ep.Index, &ep.Symbol, &ep.Agent, &ep.RPnLThreshold, &ep.RewardAsymmetry,
		&ep.Steps, &ep.Trades, &ep.TotalReward, &ep.TotalRelRPnL, &ep.FinalNetWorth, &status, &ep.Error,
		&ep.StartedAt, &ep.FinishedAt,
	)
	ep.Status = domain.EpisodeStatus(status)
	return ep, err
}

func collectEpisodes(rows pgx.Rows) ([]domain.Episode, error) {
	defer rows.Close()
	var out []domain.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// Create inserts a new running episode.
func (s *EpisodeStore) Create(ctx context.Context, ep domain.Episode) error {
	const query = `
		INSERT INTO episodes (id, run_id, idx, symbol, agent, rpnl_threshold, reward_asymmetry, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		ep.ID, ep.RunID, ep.Index, ep.Symbol, ep.Agent, ep.RPnLThreshold, ep.RewardAsymmetry,
		string(ep.Status), ep.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create episode %s: %w", ep.ID, err)
	}
	return nil
}

// Finish records the final totals and status of an episode.
func (s *EpisodeStore) Finish(ctx context.Context, ep domain.Episode) error {
	const query = `
		UPDATE episodes SET
			steps = $2, trades = $3, total_reward = $4, total_rel_rpnl = $5,
			final_net_worth = $6, status = $7, error = $8, finished_at = $9
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		ep.ID, ep.Steps, ep.Trades, ep.TotalReward, ep.TotalRelRPnL,
		ep.FinalNetWorth, string(ep.Status), ep.Error, ep.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish episode %s: %w", ep.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one episode.
func (s *EpisodeStore) GetByID(ctx context.Context, id string) (domain.Episode, error) {
	ep, err := scanEpisode(s.pool.QueryRow(ctx,
		`SELECT `+episodeSelectCols+` FROM episodes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Episode{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Episode{}, fmt.Errorf("postgres: get episode %s: %w", id, err)
	}
	return ep, nil
}

// List returns episodes, most recently started first.
func (s *EpisodeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Episode, error) {
	q := newListQuery(`SELECT ` + episodeSelectCols + ` FROM episodes WHERE TRUE`).
		window("started_at", opts).
		page("started_at DESC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list episodes: %w", err)
	}
	eps, err := collectEpisodes(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan episodes: %w", err)
	}
	return eps, nil
}

// ListByRun returns the episodes of one run in index order.
func (s *EpisodeStore) ListByRun(ctx context.Context, runID string) ([]domain.Episode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+episodeSelectCols+` FROM episodes WHERE run_id = $1 ORDER BY idx ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list episodes by run: %w", err)
	}
	eps, err := collectEpisodes(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan episodes by run: %w", err)
	}
	return eps, nil
}
