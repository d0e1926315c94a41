// Package env is a minimal simulated exchange environment: an agent picks a
// discrete action each step, orders fill at the current mid price, and the
// reward scheme scores the trades executed during that step.
package env

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/features"
	"github.com/alanyoungcy/tradereward/internal/reward"
)

// Market is the resampled series the environment replays.
type Market interface {
	Len() int
	Prices() []float64
	Features() []features.Row
	Time(i int) time.Time
}

// RewardScheme scores the trades of one step.
type RewardScheme interface {
	Name() string
	Reward(step int64, trades []domain.Trade) (reward.StepReward, error)
	Reset()
}

// Config holds the environment settings.
type Config struct {
	Symbol         string
	InitialQuote   float64
	InitialBase    float64
	TradeSizes     []float64
	WindowSize     int
	MaxAllowedLoss float64 // episode stops when net worth falls below (1-loss)*initial
	// Brackets, when set, multiply the action space: every entry carries
	// stop-loss and take-profit exits that fill at later steps.
	Brackets []Bracket
}

// StepOutcome is everything produced by one call to Step.
type StepOutcome struct {
	Observation Observation
	Reward      reward.StepReward
	Trades      []domain.Trade
	Price       float64
	NetWorth    float64
	Time        time.Time
	Done        bool
}

// Env replays a Market for one agent. It is not safe for concurrent use.
type Env struct {
	cfg       Config
	market    Market
	scheme    RewardScheme
	actions   *ActionScheme
	observer  *Observer
	portfolio *Portfolio
	broker    *Broker
	clock     Clock
	exits     []exit
	episodeID string
	initial   float64
	done      bool
	logger    *slog.Logger
}

// New creates an environment. Call Reset before the first Step.
func New(cfg Config, market Market, scheme RewardScheme, logger *slog.Logger) (*Env, error) {
	if market.Len() < 2 {
		return nil, fmt.Errorf("env: market has %d bars, need at least 2", market.Len())
	}
	actions, err := NewActionScheme(cfg.TradeSizes, cfg.Brackets...)
	if err != nil {
		return nil, err
	}
	if cfg.InitialQuote < 0 || cfg.InitialBase < 0 {
		return nil, fmt.Errorf("env: negative initial balance")
	}
	return &Env{
		cfg:       cfg,
		market:    market,
		scheme:    scheme,
		actions:   actions,
		observer:  NewObserver(market.Features(), cfg.WindowSize),
		portfolio: NewPortfolio(cfg.InitialQuote, cfg.InitialBase),
		broker:    NewBroker(),
		done:      true,
		logger:    logger.With(slog.String("component", "env")),
	}, nil
}

// Actions is the action scheme.
func (e *Env) Actions() *ActionScheme { return e.actions }

// Observer is the observation builder.
func (e *Env) Observer() *Observer { return e.observer }

// Portfolio is the simulated account.
func (e *Env) Portfolio() *Portfolio { return e.portfolio }

// Broker holds the trades of the current episode.
func (e *Env) Broker() *Broker { return e.broker }

// Step is the current clock step.
func (e *Env) Step() int64 { return e.clock.Step() }

// Reset starts a new episode and returns the first observation.
func (e *Env) Reset(episodeID string) Observation {
	e.episodeID = episodeID
	e.clock.Reset()
	e.portfolio.Reset()
	e.broker.Reset()
	e.exits = e.exits[:0]
	e.scheme.Reset()
	e.initial = e.portfolio.NetWorth(e.market.Prices()[0])
	e.done = false
	return e.observer.Observe(0)
}

// Act executes action at the current step, scores the step's trades and
// advances the clock.
func (e *Env) Act(action int) (StepOutcome, error) {
	if e.done {
		return StepOutcome{}, domain.ErrEpisodeDone
	}
	step := e.clock.Step()
	i := int(step)
	price := e.market.Prices()[i]
	ts := e.market.Time(i)

	order, ok, err := e.actions.Decode(action)
	if err != nil {
		return StepOutcome{}, err
	}
	if err := e.triggerExits(step, price, ts); err != nil {
		return StepOutcome{}, err
	}
	if ok {
		t, err := e.portfolio.Execute(order.Side, order.Fraction, price)
		switch {
		case errors.Is(err, domain.ErrInsufficient):
			e.logger.Debug("env: order skipped",
				slog.Int64("step", step),
				slog.String("side", string(order.Side)),
				slog.Float64("fraction", order.Fraction),
			)
		case err != nil:
			return StepOutcome{}, err
		default:
			e.record(t, step, ts)
			if order.Bracket.Active() {
				e.exits = append(e.exits, newExit(t, step, order.Bracket))
			}
		}
	}

	trades := e.broker.TradesAt(step)
	r, err := e.scheme.Reward(step, trades)
	if err != nil {
		e.done = true
		return StepOutcome{}, fmt.Errorf("env: step %d: %w", step, err)
	}

	netWorth := e.portfolio.NetWorth(price)
	e.clock.Increment()
	next := i + 1
	e.done = next >= e.market.Len() || e.lossExceeded(netWorth)
	if next >= e.market.Len() {
		next = e.market.Len() - 1
	}

	return StepOutcome{
		Observation: e.observer.Observe(next),
		Reward:      r,
		Trades:      trades,
		Price:       price,
		NetWorth:    netWorth,
		Time:        ts,
		Done:        e.done,
	}, nil
}

func (e *Env) record(t domain.Trade, step int64, ts time.Time) {
	t.ID = uuid.NewString()
	t.EpisodeID = e.episodeID
	t.Step = step
	t.Symbol = e.cfg.Symbol
	t.Timestamp = ts
	e.broker.Record(t)
}

// triggerExits fills every pending bracket whose stop or target the price
// has reached, and drops the ones that expired or can no longer be funded.
func (e *Env) triggerExits(step int64, price float64, ts time.Time) error {
	kept := e.exits[:0]
	for _, x := range e.exits {
		if x.expired(step) {
			continue
		}
		if !x.hit(price) {
			kept = append(kept, x)
			continue
		}
		t, err := e.portfolio.ExecuteSize(x.side, x.size, price)
		switch {
		case errors.Is(err, domain.ErrInsufficient):
			e.logger.Debug("env: bracket exit skipped",
				slog.Int64("step", step),
				slog.String("side", string(x.side)),
				slog.Float64("size", x.size),
			)
		case err != nil:
			return err
		default:
			e.record(t, step, ts)
		}
	}
	e.exits = kept
	return nil
}

func (e *Env) lossExceeded(netWorth float64) bool {
	if e.cfg.MaxAllowedLoss <= 0 {
		return false
	}
	return netWorth < (1-e.cfg.MaxAllowedLoss)*e.initial
}
