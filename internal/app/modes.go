package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradereward/internal/agent"
	"github.com/alanyoungcy/tradereward/internal/env"
	"github.com/alanyoungcy/tradereward/internal/features"
	"github.com/alanyoungcy/tradereward/internal/feed"
	"github.com/alanyoungcy/tradereward/internal/reward"
	"github.com/alanyoungcy/tradereward/internal/server"
	"github.com/alanyoungcy/tradereward/internal/server/handler"
	"github.com/alanyoungcy/tradereward/internal/server/ws"
	"github.com/alanyoungcy/tradereward/internal/service"
)

// TrainMode runs the configured episodes once and returns.
func (a *App) TrainMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting train mode")

	svc, closeAgent, err := a.buildEpisodeService(ctx, deps)
	if err != nil {
		return fmt.Errorf("train mode: %w", err)
	}
	defer closeAgent()

	if _, err := svc.Run(ctx); err != nil {
		return fmt.Errorf("train mode: %w", err)
	}
	return nil
}

// FetchMode downloads and parses the datasets so later runs start warm.
func (a *App) FetchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting fetch mode")
	if a.cfg.Feed.Source != "tardis" {
		return fmt.Errorf("fetch mode: feed source %q has nothing to download", a.cfg.Feed.Source)
	}
	if _, err := a.loadMarket(ctx, deps); err != nil {
		return fmt.Errorf("fetch mode: %w", err)
	}
	return nil
}

// ServerMode serves stored results and relays live rewards.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil, "")
	return g.Wait()
}

// ArchiveMode moves old simulated trades to object storage, once or on a
// fixed interval.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return errors.New("archive mode: requires postgres and s3")
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		return a.archiveOnce(ctx, deps)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startArchiveLoop(ctx, g, deps, interval)
	return g.Wait()
}

// FullMode runs episodes on start and on every POST /api/runs, serves the
// API, and archives on schedule when configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svc, closeAgent, err := a.buildEpisodeService(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	defer closeAgent()

	g, ctx := errgroup.WithContext(ctx)

	triggerCh := make(chan struct{}, 1)
	triggerCh <- struct{}{} // first run starts immediately
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-triggerCh:
				if _, err := svc.Run(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					// A failed run is reported and the next trigger retries.
					a.logger.ErrorContext(ctx, "full mode: run failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, triggerCh, a.agentName())
	}
	if deps.Archiver != nil && a.cfg.Archive.Interval.Duration > 0 {
		a.startArchiveLoop(ctx, g, deps, a.cfg.Archive.Interval.Duration)
	}

	return g.Wait()
}

// buildEpisodeService loads the market and assembles environment, reward
// scheme, agent and runner. The returned func releases the agent.
func (a *App) buildEpisodeService(ctx context.Context, deps *Dependencies) (*service.EpisodeService, func(), error) {
	market, err := a.loadMarket(ctx, deps)
	if err != nil {
		return nil, nil, err
	}

	thresholds := reward.Thresholds{
		RPnLThreshold:   a.cfg.Reward.RPnLThreshold,
		RewardAsymmetry: a.cfg.Reward.RewardAsymmetry,
	}
	scheme, err := reward.NewTradeCompletion(thresholds, a.logger)
	if err != nil {
		return nil, nil, err
	}

	e, err := env.New(env.Config{
		Symbol:         a.cfg.Episode.Symbol,
		InitialQuote:   a.cfg.Episode.InitialQuote,
		InitialBase:    a.cfg.Episode.InitialBase,
		TradeSizes:     a.cfg.Episode.TradeSizes,
		WindowSize:     a.cfg.Episode.WindowSize,
		MaxAllowedLoss: a.cfg.Episode.MaxAllowedLoss,
		Brackets: env.BracketGrid(
			a.cfg.Episode.StopLoss,
			a.cfg.Episode.TakeProfit,
			a.cfg.Episode.BracketDurations,
		),
	}, market, scheme, a.logger)
	if err != nil {
		return nil, nil, err
	}

	ag, closeAgent, err := a.buildAgent(e)
	if err != nil {
		return nil, nil, err
	}

	epDeps := service.EpisodeDeps{
		Env:      e,
		Agent:    ag,
		Episodes: deps.EpisodeStore,
		Steps:    deps.StepStore,
		Trades:   deps.TradeStore,
		Audit:    deps.AuditStore,
		Prices:   deps.PriceCache,
		Bus:      deps.SignalBus,
		Locks:    deps.LockManager,
	}
	if deps.Reports != nil {
		epDeps.Reports = deps.Reports
	}
	if deps.Notifier.Enabled() {
		epDeps.Notifier = deps.Notifier
	}

	svc := service.NewEpisodeService(epDeps, service.EpisodeConfig{
		Episodes:   a.cfg.Episode.Episodes,
		Steps:      a.cfg.Episode.Steps,
		Symbol:     a.cfg.Episode.Symbol,
		Thresholds: thresholds,
	}, a.logger)
	return svc, closeAgent, nil
}

func (a *App) buildAgent(e *env.Env) (agent.Agent, func(), error) {
	switch a.cfg.Agent.Kind {
	case "onnx":
		p, err := agent.NewONNXPolicy(
			a.cfg.Agent.ModelPath,
			a.cfg.Agent.ORTLibPath,
			e.Observer().Window(),
			e.Observer().Width(),
			e.Actions().Size(),
		)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return agent.NewRandom(e.Actions().Size(), uint64(a.cfg.Agent.Seed)), func() {}, nil
	}
}

func (a *App) agentName() string {
	return a.cfg.Agent.Kind
}

func (a *App) featureParams() features.Params {
	return features.Params{
		RSIPeriod:  a.cfg.Features.RSIPeriod,
		MACDFast:   a.cfg.Features.MACDFast,
		MACDSlow:   a.cfg.Features.MACDSlow,
		MACDSignal: a.cfg.Features.MACDSignal,
	}
}

// loadMarket builds the resampled feed from downloaded datasets or, for
// offline runs, a seeded random walk.
func (a *App) loadMarket(ctx context.Context, deps *Dependencies) (*feed.TimeBasedFeed, error) {
	interval := a.cfg.Feed.Interval.Duration

	if a.cfg.Feed.Source == "random" {
		walk := feed.RandomWalk{
			Start:  time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
			Price:  9350,
			Vol:    0.0005,
			Spread: 0.5,
			Tick:   interval,
			Seed:   uint64(a.cfg.Feed.RandomSeed),
		}
		quotes, trades := walk.Generate(a.cfg.Feed.RandomBars)
		mid := make([]float64, len(quotes))
		for i, q := range quotes {
			mid[i] = q.Mid()
		}
		return feed.NewTimeBasedFeed(quotes, trades, features.Extract(mid, a.featureParams()), interval)
	}

	var opts []feed.FetcherOption
	if a.cfg.Feed.UseBlobCache && deps.BlobReader != nil && deps.BlobWriter != nil {
		opts = append(opts, feed.WithBlobCache(deps.BlobReader, deps.BlobWriter, a.cfg.Feed.PathPrefix))
	}
	if deps.RateLimiter != nil {
		opts = append(opts, feed.WithRateLimiter(deps.RateLimiter))
	}
	fetcher := feed.NewFetcher(a.cfg.Feed.DataDir, a.logger, opts...)

	return feed.Load(ctx, fetcher, feed.Source{
		QuotesURL: a.cfg.Feed.QuotesURL,
		TradesURL: a.cfg.Feed.TradesURL,
		Interval:  interval,
		NRows:     a.cfg.Feed.NRows,
		Features:  a.featureParams(),
	}, a.logger)
}

// startHTTPServer adds the HTTP server, its WebSocket hub and the graceful
// shutdown watcher to g. triggerCh is nil when runs cannot be started from
// the API.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, triggerCh chan<- struct{}, agentName string) {
	startedAt := time.Now().UTC()
	schemeName := (&reward.TradeCompletion{}).Name()

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Status: &handler.StatusHandler{
			Mode:   a.cfg.Mode,
			Agent:  agentName,
			Scheme: schemeName,
			Thresholds: reward.Thresholds{
				RPnLThreshold:   a.cfg.Reward.RPnLThreshold,
				RewardAsymmetry: a.cfg.Reward.RewardAsymmetry,
			},
			StartedAt: startedAt,
		},
	}
	if deps.EpisodeStore != nil {
		query := service.NewQueryService(deps.EpisodeStore, deps.StepStore, deps.TradeStore, deps.PriceCache)
		handlers.Episodes = handler.NewEpisodeHandler(query, a.logger)
	}
	if triggerCh != nil {
		handlers.Runs = handler.NewRunHandler(triggerCh, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		handlers.Rewards = handler.NewStreamHandler(deps.SignalBus, service.StreamRewards, a.logger)
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			Channels:  []string{service.ChannelRewards},
			Mode:      a.cfg.Mode,
			Agent:     agentName,
			StartedAt: startedAt,
		}, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies, interval time.Duration) {
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := a.archiveOnce(ctx, deps); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.ErrorContext(ctx, "archive: run failed", slog.String("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}

func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	n, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	a.logger.InfoContext(ctx, "archive: trades archived",
		slog.Int64("trades", n),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
