package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradereward/internal/agent"
	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/env"
	"github.com/alanyoungcy/tradereward/internal/notify"
	"github.com/alanyoungcy/tradereward/internal/reward"
)

// Bus names for live step rewards.
const (
	ChannelRewards = "rewards"
	StreamRewards  = "rewards:history"
)

const runLockKey = "episode_run"

// finishTimeout bounds the writes that close out an episode once its run
// context is gone.
const finishTimeout = 30 * time.Second

// ReportWriter uploads an episode report and returns where it went.
type ReportWriter interface {
	WriteReport(ctx context.Context, ep domain.Episode, steps []domain.StepResult) (string, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, m notify.Message) error
}

// EpisodeDeps are the collaborators of an EpisodeService. Env and Agent are
// required; every other field may be nil and is then skipped.
type EpisodeDeps struct {
	Env      *env.Env
	Agent    agent.Agent
	Episodes domain.EpisodeStore
	Steps    domain.StepStore
	Trades   domain.TradeStore
	Audit    domain.AuditStore
	Prices   domain.PriceCache
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Reports  ReportWriter
	Notifier Notifier
}

// EpisodeConfig controls a run.
type EpisodeConfig struct {
	Episodes   int
	Steps      int // per episode; <= 0 runs until the market is exhausted
	Symbol     string
	Thresholds reward.Thresholds
	LockTTL    time.Duration
}

// RunSummary aggregates the episodes of one run.
type RunSummary struct {
	RunID       string           `json:"run_id"`
	Episodes    []domain.Episode `json:"episodes"`
	MeanReward  float64          `json:"mean_reward"`
	TotalTrades int64            `json:"total_trades"`
}

// EpisodeService drives an agent through episodes of the environment and
// records every step reward.
type EpisodeService struct {
	deps   EpisodeDeps
	cfg    EpisodeConfig
	logger *slog.Logger
}

// NewEpisodeService creates an EpisodeService.
func NewEpisodeService(deps EpisodeDeps, cfg EpisodeConfig, logger *slog.Logger) *EpisodeService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Hour
	}
	return &EpisodeService{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "episode_service")),
	}
}

// Run executes the configured number of episodes under a run lock so only
// one runner writes results at a time.
func (s *EpisodeService) Run(ctx context.Context) (RunSummary, error) {
	if s.deps.Locks != nil {
		unlock, err := s.deps.Locks.Acquire(ctx, runLockKey, s.cfg.LockTTL)
		if err != nil {
			return RunSummary{}, fmt.Errorf("episode_service: acquire run lock: %w", err)
		}
		defer unlock()
	}

	summary := RunSummary{RunID: uuid.NewString()}
	s.logger.InfoContext(ctx, "episode_service: run started",
		slog.String("run_id", summary.RunID),
		slog.Int("episodes", s.cfg.Episodes),
		slog.Int("steps", s.cfg.Steps),
		slog.String("agent", s.deps.Agent.Name()),
	)

	var rewardSum float64
	for i := 0; i < s.cfg.Episodes; i++ {
		ep, err := s.RunEpisode(ctx, summary.RunID, i)
		if ep.ID != "" {
			summary.Episodes = append(summary.Episodes, ep)
			rewardSum += ep.TotalReward
			summary.TotalTrades += ep.Trades
		}
		if err != nil {
			return summary, err
		}
	}
	if n := len(summary.Episodes); n > 0 {
		summary.MeanReward = rewardSum / float64(n)
	}

	s.notify(ctx, notify.Message{
		Event: notify.EventRunFinished,
		Title: "Run finished",
		Fields: map[string]string{
			"run_id":      summary.RunID,
			"episodes":    strconv.Itoa(len(summary.Episodes)),
			"mean_reward": formatFloat(summary.MeanReward),
			"trades":      strconv.FormatInt(summary.TotalTrades, 10),
		},
	})
	s.logger.InfoContext(ctx, "episode_service: run finished",
		slog.String("run_id", summary.RunID),
		slog.Float64("mean_reward", summary.MeanReward),
		slog.Int64("trades", summary.TotalTrades),
	)
	return summary, nil
}

// RunEpisode resets the environment and steps it until the step budget is
// spent or the episode ends. A reward fault or a cancelled ctx fails the
// episode; the partial results are still persisted.
func (s *EpisodeService) RunEpisode(ctx context.Context, runID string, index int) (domain.Episode, error) {
	ep := domain.Episode{
		ID:              uuid.NewString(),
		RunID:           runID,
		Index:           index,
		Symbol:          s.cfg.Symbol,
		Agent:           s.deps.Agent.Name(),
		RPnLThreshold:   s.cfg.Thresholds.RPnLThreshold,
		RewardAsymmetry: s.cfg.Thresholds.RewardAsymmetry,
		Status:          domain.EpisodeStatusRunning,
		StartedAt:       time.Now().UTC(),
	}
	if s.deps.Episodes != nil {
		if err := s.deps.Episodes.Create(ctx, ep); err != nil {
			return domain.Episode{}, fmt.Errorf("episode_service: create episode: %w", err)
		}
	}

	steps, runErr := s.simulate(ctx, &ep)

	finished := time.Now().UTC()
	ep.FinishedAt = &finished
	ep.Status = domain.EpisodeStatusFinished
	if runErr != nil {
		ep.Status = domain.EpisodeStatusFailed
		ep.Error = runErr.Error()
	}

	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := s.persist(finCtx, ep, steps); err != nil {
		return ep, errors.Join(runErr, err)
	}
	s.publishSideEffects(finCtx, ep, steps)

	level := slog.LevelInfo
	if runErr != nil {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "episode_service: episode finished",
		slog.String("episode_id", ep.ID),
		slog.Int("index", ep.Index),
		slog.String("status", string(ep.Status)),
		slog.Int64("steps", ep.Steps),
		slog.Int64("trades", ep.Trades),
		slog.Float64("total_reward", ep.TotalReward),
		slog.Float64("net_worth", ep.FinalNetWorth),
	)
	if runErr != nil {
		return ep, fmt.Errorf("episode_service: episode %d: %w", index, runErr)
	}
	return ep, nil
}

func (s *EpisodeService) simulate(ctx context.Context, ep *domain.Episode) ([]domain.StepResult, error) {
	e := s.deps.Env
	obs := e.Reset(ep.ID)

	var steps []domain.StepResult
	for s.cfg.Steps <= 0 || len(steps) < s.cfg.Steps {
		if err := ctx.Err(); err != nil {
			return steps, fmt.Errorf("%w: %w", domain.ErrContextDone, err)
		}

		action, err := s.deps.Agent.Act(obs)
		if err != nil {
			return steps, fmt.Errorf("agent: %w", err)
		}
		out, err := e.Act(action)
		if err != nil {
			return steps, err
		}

		res := domain.StepResult{
			EpisodeID: ep.ID,
			Step:      out.Reward.Step,
			Action:    action,
			Price:     out.Price,
			Trades:    out.Reward.Trades,
			RelRPnL:   out.Reward.RelRPnL,
			Reward:    out.Reward.Reward,
			Position:  out.Reward.Position,
			NetWorth:  out.NetWorth,
			Timestamp: out.Time,
		}
		steps = append(steps, res)
		ep.Steps++
		ep.Trades += int64(res.Trades)
		ep.TotalReward += res.Reward
		ep.TotalRelRPnL += res.RelRPnL
		ep.FinalNetWorth = res.NetWorth

		s.publishStep(ctx, res)
		obs = out.Observation
		if out.Done {
			break
		}
	}
	return steps, nil
}

// publishStep streams a step to live subscribers and refreshes the cached
// mid price. Failures are logged and never stop the episode.
func (s *EpisodeService) publishStep(ctx context.Context, res domain.StepResult) {
	if s.deps.Prices != nil {
		if err := s.deps.Prices.SetPrice(ctx, s.cfg.Symbol, res.Price, res.Timestamp); err != nil {
			s.logger.WarnContext(ctx, "episode_service: cache price failed", slog.String("error", err.Error()))
		}
	}
	if s.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(stepEvent{Event: "step_reward", StepResult: res})
	if err != nil {
		s.logger.WarnContext(ctx, "episode_service: marshal step event failed", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, ChannelRewards, payload); err != nil {
		s.logger.WarnContext(ctx, "episode_service: publish step failed",
			slog.Int64("step", res.Step),
			slog.String("error", err.Error()),
		)
	}
	if err := s.deps.Bus.StreamAppend(ctx, StreamRewards, payload); err != nil {
		s.logger.WarnContext(ctx, "episode_service: stream step failed",
			slog.Int64("step", res.Step),
			slog.String("error", err.Error()),
		)
	}
}

type stepEvent struct {
	Event string `json:"event"`
	domain.StepResult
}

// persist writes the episode summary, its steps and its trades.
func (s *EpisodeService) persist(ctx context.Context, ep domain.Episode, steps []domain.StepResult) error {
	if s.deps.Episodes != nil {
		if err := s.deps.Episodes.Finish(ctx, ep); err != nil {
			return fmt.Errorf("episode_service: finish episode: %w", err)
		}
	}
	if s.deps.Steps != nil {
		if err := s.deps.Steps.InsertBatch(ctx, steps); err != nil {
			return fmt.Errorf("episode_service: insert steps: %w", err)
		}
	}
	if s.deps.Trades != nil {
		if err := s.deps.Trades.InsertBatch(ctx, s.deps.Env.Broker().All()); err != nil {
			return fmt.Errorf("episode_service: insert trades: %w", err)
		}
	}
	return nil
}

// publishSideEffects records the audit entry, uploads the report and sends
// the episode notification.
func (s *EpisodeService) publishSideEffects(ctx context.Context, ep domain.Episode, steps []domain.StepResult) {
	detail := map[string]any{
		"episode_id":   ep.ID,
		"run_id":       ep.RunID,
		"status":       string(ep.Status),
		"steps":        ep.Steps,
		"trades":       ep.Trades,
		"total_reward": ep.TotalReward,
	}

	if s.deps.Reports != nil {
		path, err := s.deps.Reports.WriteReport(ctx, ep, steps)
		if err != nil {
			s.logger.WarnContext(ctx, "episode_service: upload report failed", slog.String("error", err.Error()))
		} else {
			detail["report"] = path
		}
	}

	if s.deps.Audit != nil {
		if err := s.deps.Audit.Log(ctx, "episode."+string(ep.Status), detail); err != nil {
			s.logger.WarnContext(ctx, "episode_service: audit log failed", slog.String("error", err.Error()))
		}
	}

	event, title := notify.EventEpisodeFinished, "Episode finished"
	if ep.Status == domain.EpisodeStatusFailed {
		event, title = notify.EventEpisodeFailed, "Episode failed"
	}
	fields := map[string]string{
		"episode":      strconv.Itoa(ep.Index),
		"steps":        strconv.FormatInt(ep.Steps, 10),
		"trades":       strconv.FormatInt(ep.Trades, 10),
		"total_reward": formatFloat(ep.TotalReward),
		"net_worth":    formatFloat(ep.FinalNetWorth),
	}
	if ep.Error != "" {
		fields["error"] = ep.Error
	}
	s.notify(ctx, notify.Message{Event: event, Title: title, Fields: fields})
}

func (s *EpisodeService) notify(ctx context.Context, m notify.Message) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, m); err != nil {
		s.logger.WarnContext(ctx, "episode_service: notify failed",
			slog.String("event", m.Event),
			slog.String("error", err.Error()),
		)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
