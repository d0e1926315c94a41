package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// QueryService serves stored episode results to the API.
type QueryService struct {
	episodes domain.EpisodeStore
	steps    domain.StepStore
	trades   domain.TradeStore
	prices   domain.PriceCache
}

// NewQueryService creates a QueryService; prices may be nil.
func NewQueryService(episodes domain.EpisodeStore, steps domain.StepStore, trades domain.TradeStore, prices domain.PriceCache) *QueryService {
	return &QueryService{episodes: episodes, steps: steps, trades: trades, prices: prices}
}

// ListEpisodes returns episodes, most recent first.
func (s *QueryService) ListEpisodes(ctx context.Context, opts domain.ListOpts) ([]domain.Episode, error) {
	eps, err := s.episodes.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("query_service: list episodes: %w", err)
	}
	return eps, nil
}

// ListRun returns the episodes of one run in order.
func (s *QueryService) ListRun(ctx context.Context, runID string) ([]domain.Episode, error) {
	eps, err := s.episodes.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("query_service: list run %s: %w", runID, err)
	}
	return eps, nil
}

// GetEpisode returns one episode or an error wrapping domain.ErrNotFound.
func (s *QueryService) GetEpisode(ctx context.Context, id string) (domain.Episode, error) {
	ep, err := s.episodes.GetByID(ctx, id)
	if err != nil {
		return domain.Episode{}, fmt.Errorf("query_service: get episode %s: %w", id, err)
	}
	return ep, nil
}

// ListSteps returns the step results of an episode.
func (s *QueryService) ListSteps(ctx context.Context, episodeID string, opts domain.ListOpts) ([]domain.StepResult, error) {
	if _, err := s.GetEpisode(ctx, episodeID); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByEpisode(ctx, episodeID, opts)
	if err != nil {
		return nil, fmt.Errorf("query_service: list steps %s: %w", episodeID, err)
	}
	return steps, nil
}

// ListTrades returns the simulated trades of an episode.
func (s *QueryService) ListTrades(ctx context.Context, episodeID string, opts domain.ListOpts) ([]domain.Trade, error) {
	if _, err := s.GetEpisode(ctx, episodeID); err != nil {
		return nil, err
	}
	trades, err := s.trades.ListByEpisode(ctx, episodeID, opts)
	if err != nil {
		return nil, fmt.Errorf("query_service: list trades %s: %w", episodeID, err)
	}
	return trades, nil
}

// LatestPrice returns the last mid price the runner cached for symbol.
func (s *QueryService) LatestPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	if s.prices == nil {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, ts, err := s.prices.GetPrice(ctx, symbol)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("query_service: latest price %s: %w", symbol, err)
	}
	return price, ts, nil
}
