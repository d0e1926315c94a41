package reward

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// StepReward is the outcome of one call to TradeCompletion.Reward.
type StepReward struct {
	Step     int64
	Trades   int
	RelRPnL  float64
	Reward   float64
	Position domain.PositionSnapshot
}

// TradeCompletion rewards an agent for the relative PnL it realizes when it
// closes or reverses a position. A partial reduce only re-blends the VWAP.
// Each instance owns its ledger exclusively and is not safe for concurrent
// use; give every environment its own instance.
type TradeCompletion struct {
	thresholds Thresholds
	ledger     Ledger
	logger     *slog.Logger
}

// NewTradeCompletion validates thresholds and returns a flat scheme.
func NewTradeCompletion(t Thresholds, logger *slog.Logger) (*TradeCompletion, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TradeCompletion{
		thresholds: t,
		logger:     logger.With(slog.String("component", "reward")),
	}, nil
}

// Name is the registered name of the scheme.
func (s *TradeCompletion) Name() string {
	return "trade-completion"
}

// Thresholds returns the configured thresholds.
func (s *TradeCompletion) Thresholds() Thresholds {
	return s.thresholds
}

// Reward folds the trades executed at step into the ledger and shapes the
// relative PnL they realized. Every trade must belong to step. On error the
// ledger is unchanged and no reward is produced.
func (s *TradeCompletion) Reward(step int64, trades []domain.Trade) (StepReward, error) {
	for i, t := range trades {
		if t.Step != step {
			return StepReward{}, fmt.Errorf("reward: trade %d (%s) at step %d, current step %d: %w",
				i, t.ID, t.Step, step, domain.ErrStepMismatch)
		}
	}

	next := s.ledger
	rel, err := next.Process(trades)
	if err != nil {
		return StepReward{}, err
	}
	if math.IsNaN(rel) || math.IsInf(rel, 0) {
		return StepReward{}, fmt.Errorf("reward: step %d rel_rpnl %v: %w", step, rel, domain.ErrNonFiniteReward)
	}
	s.ledger = next

	out := StepReward{
		Step:     step,
		Trades:   len(trades),
		RelRPnL:  rel,
		Reward:   Shape(rel, s.thresholds),
		Position: s.ledger.Snapshot(),
	}
	if len(trades) > 0 {
		s.logger.Debug("reward: step processed",
			slog.Int64("step", step),
			slog.Int("trades", out.Trades),
			slog.Float64("rel_rpnl", out.RelRPnL),
			slog.Float64("reward", out.Reward),
			slog.Float64("position", out.Position.Position),
		)
	}
	return out, nil
}

// Reset clears the position and VWAP at an episode boundary.
func (s *TradeCompletion) Reset() {
	s.ledger.Reset()
}

// Snapshot returns the current position state.
func (s *TradeCompletion) Snapshot() domain.PositionSnapshot {
	return s.ledger.Snapshot()
}
