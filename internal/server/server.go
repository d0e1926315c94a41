// Package server exposes episode results and live step rewards over HTTP
// and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/server/handler"
	"github.com/alanyoungcy/tradereward/internal/server/middleware"
	"github.com/alanyoungcy/tradereward/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // empty disables authentication
	RateLimit       int    // requests per RateLimitWindow per client; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Episodes and
// Health are required; nil optional handlers leave their routes unregistered.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Episodes *handler.EpisodeHandler
	Rewards  *handler.StreamHandler
	Runs     *handler.RunHandler
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps them in CORS, logging, rate
// limiting and auth, outermost first.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	// Result routes exist only when episodes are persisted.
	if handlers.Episodes != nil {
		mux.HandleFunc("GET /api/episodes", handlers.Episodes.ListEpisodes)
		mux.HandleFunc("GET /api/episodes/{id}", handlers.Episodes.GetEpisode)
		mux.HandleFunc("GET /api/episodes/{id}/steps", handlers.Episodes.ListSteps)
		mux.HandleFunc("GET /api/episodes/{id}/trades", handlers.Episodes.ListTrades)
		mux.HandleFunc("GET /api/runs/{id}", handlers.Episodes.ListRun)
		mux.HandleFunc("GET /api/prices/{symbol}", handlers.Episodes.LatestPrice)
	}

	if handlers.Rewards != nil {
		mux.HandleFunc("GET /api/rewards", handlers.Rewards.ListRewards)
	}
	if handlers.Runs != nil {
		mux.HandleFunc("POST /api/runs", handlers.Runs.TriggerRun)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler is the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
