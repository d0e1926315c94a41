package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// TradeStore implements domain.TradeStore for simulated trades.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, episode_id, step, symbol, side, price, quantity, ts`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.EpisodeID, &t.Step, &t.Symbol, &side, &t.Price, &t.Quantity, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch inserts trades with pgx Batch. Re-inserting a trade ID is a
// no-op.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	const query = `
		INSERT INTO sim_trades (id, episode_id, step, symbol, side, price, quantity, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query, t.ID, t.EpisodeID, t.Step, t.Symbol, string(t.Side), t.Price, t.Quantity, t.Timestamp)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByEpisode returns the trades of one episode in execution order.
func (s *TradeStore) ListByEpisode(ctx context.Context, episodeID string, opts domain.ListOpts) ([]domain.Trade, error) {
	q := newListQuery(`SELECT `+tradeSelectCols+` FROM sim_trades WHERE episode_id = $1`, episodeID).
		window("ts", opts).
		page("step ASC, created_at ASC", opts)

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by episode: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by episode: %w", err)
	}
	return trades, nil
}

// ListBefore returns up to limit trades stored before the given time, oldest
// first. limit <= 0 returns all of them.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	q := newListQuery(`SELECT `+tradeSelectCols+` FROM sim_trades WHERE created_at < $1`, before).
		page("created_at ASC", domain.ListOpts{Limit: limit})

	rows, err := s.pool.Query(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore deletes trades stored before the given time and returns the
// number removed.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sim_trades WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before: %w", err)
	}
	return tag.RowsAffected(), nil
}
