package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/reward"
	"github.com/alanyoungcy/tradereward/internal/server/handler"
	"github.com/alanyoungcy/tradereward/internal/server/ws"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeQuery struct {
	episodes map[string]domain.Episode
	steps    []domain.StepResult
	lastOpts domain.ListOpts
}

func (q *fakeQuery) ListEpisodes(_ context.Context, opts domain.ListOpts) ([]domain.Episode, error) {
	q.lastOpts = opts
	var out []domain.Episode
	for _, ep := range q.episodes {
		out = append(out, ep)
	}
	return out, nil
}

func (q *fakeQuery) ListRun(_ context.Context, runID string) ([]domain.Episode, error) {
	var out []domain.Episode
	for _, ep := range q.episodes {
		if ep.RunID == runID {
			out = append(out, ep)
		}
	}
	return out, nil
}

func (q *fakeQuery) GetEpisode(_ context.Context, id string) (domain.Episode, error) {
	ep, ok := q.episodes[id]
	if !ok {
		return domain.Episode{}, domain.ErrNotFound
	}
	return ep, nil
}

func (q *fakeQuery) ListSteps(ctx context.Context, id string, opts domain.ListOpts) ([]domain.StepResult, error) {
	if _, err := q.GetEpisode(ctx, id); err != nil {
		return nil, err
	}
	q.lastOpts = opts
	return q.steps, nil
}

func (q *fakeQuery) ListTrades(context.Context, string, domain.ListOpts) ([]domain.Trade, error) {
	return nil, errors.New("db down")
}

func (q *fakeQuery) LatestPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	if symbol != "BTCUSDT" {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return 9352.25, time.Unix(1580515200, 0), nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyLimiter) Wait(context.Context, string) error                            { return nil }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fakeBus struct {
	ch       chan []byte
	messages []domain.StreamMessage
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	var out []domain.StreamMessage
	for _, m := range b.messages {
		if m.ID > lastID && len(out) < count {
			out = append(out, m)
		}
	}
	return out, nil
}

func newTestServer(cfg Config, health map[string]handler.Pinger, limiter domain.RateLimiter, hub *ws.Hub, bus *fakeBus) (*Server, *fakeQuery) {
	q := &fakeQuery{
		episodes: map[string]domain.Episode{
			"ep-1": {ID: "ep-1", RunID: "run-1", Status: domain.EpisodeStatusFinished, TotalReward: 1},
		},
		steps: []domain.StepResult{{EpisodeID: "ep-1", Step: 0, Reward: 1}},
	}
	trigger := make(chan struct{}, 1)
	handlers := Handlers{
		Health:   handler.NewHealthHandler(health, quiet),
		Status:   &handler.StatusHandler{Mode: "server", Agent: "random", Scheme: "trade-completion", Thresholds: reward.Thresholds{RPnLThreshold: 0.02, RewardAsymmetry: 2}},
		Episodes: handler.NewEpisodeHandler(q, quiet),
		Runs:     handler.NewRunHandler(trigger, quiet),
	}
	if bus != nil {
		handlers.Rewards = handler.NewStreamHandler(bus, "rewards:history", quiet)
	}
	return NewServer(cfg, handlers, hub, limiter, quiet), q
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(Config{APIKey: "secret"}, map[string]handler.Pinger{"postgres": pinger{}}, nil, nil, nil)
	rec, body := do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}

	srv, _ = newTestServer(Config{}, map[string]handler.Pinger{"redis": pinger{err: errors.New("down")}}, nil, nil, nil)
	rec, body = do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable || body["checks"].(map[string]any)["redis"] != "down" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestEpisodeRoutes(t *testing.T) {
	srv, q := newTestServer(Config{}, nil, nil, nil, nil)
	h := srv.Handler()

	rec, body := do(t, h, http.MethodGet, "/api/episodes?limit=1000&offset=5", nil)
	if rec.Code != http.StatusOK || body["count"] != 1.0 {
		t.Fatalf("list = %d %v", rec.Code, body)
	}
	if q.lastOpts.Limit != 500 || q.lastOpts.Offset != 5 {
		t.Fatalf("opts = %+v", q.lastOpts)
	}

	rec, body = do(t, h, http.MethodGet, "/api/episodes/ep-1", nil)
	if rec.Code != http.StatusOK || body["id"] != "ep-1" || body["status"] != "finished" {
		t.Fatalf("get = %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/episodes/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing episode = %d", rec.Code)
	}

	rec, body = do(t, h, http.MethodGet, "/api/episodes/ep-1/steps?since=2020-02-01T00:00:00Z", nil)
	if rec.Code != http.StatusOK || body["count"] != 1.0 || q.lastOpts.Since == nil {
		t.Fatalf("steps = %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/episodes/ep-1/steps?until=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad until = %d", rec.Code)
	}

	rec, body = do(t, h, http.MethodGet, "/api/episodes/ep-1/trades", nil)
	if rec.Code != http.StatusInternalServerError || strings.Contains(body["error"].(string), "db down") {
		t.Fatalf("trades = %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/runs/run-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d", rec.Code)
	}
	rec, _ = do(t, h, http.MethodGet, "/api/runs/run-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run = %d", rec.Code)
	}

	rec, body = do(t, h, http.MethodGet, "/api/prices/BTCUSDT", nil)
	if rec.Code != http.StatusOK || body["price"] != 9352.25 {
		t.Fatalf("price = %d %v", rec.Code, body)
	}
}

func TestStatusAndRunTrigger(t *testing.T) {
	srv, _ := newTestServer(Config{}, nil, nil, nil, nil)
	h := srv.Handler()

	rec, body := do(t, h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK || body["profit_trigger"] != 0.04 || body["reward_scheme"] != "trade-completion" {
		t.Fatalf("status = %d %v", rec.Code, body)
	}

	_, body = do(t, h, http.MethodPost, "/api/runs", nil)
	if body["queued"] != true {
		t.Fatalf("first trigger = %v", body)
	}
	rec, body = do(t, h, http.MethodPost, "/api/runs", nil)
	if rec.Code != http.StatusAccepted || body["queued"] != false {
		t.Fatalf("second trigger = %d %v", rec.Code, body)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(Config{APIKey: "secret"}, nil, nil, nil, nil)
	h := srv.Handler()

	if rec, _ := do(t, h, http.MethodGet, "/api/episodes", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/api/episodes", map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/api/episodes", map[string]string{"X-API-Key": "secret"}); rec.Code != http.StatusOK {
		t.Fatalf("api key = %d", rec.Code)
	}
	if rec, _ := do(t, h, http.MethodGet, "/api/episodes?token=secret", nil); rec.Code != http.StatusOK {
		t.Fatalf("query token = %d", rec.Code)
	}
}

func TestCORSAndRateLimit(t *testing.T) {
	srv, _ := newTestServer(Config{CORSOrigins: []string{"https://dash.example"}, RateLimit: 10}, nil, denyLimiter{}, nil, nil)
	h := srv.Handler()

	rec, _ := do(t, h, http.MethodOptions, "/api/episodes", map[string]string{"Origin": "https://dash.example"})
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://dash.example" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}

	rec, _ = do(t, h, http.MethodGet, "/api/episodes", map[string]string{"Origin": "https://evil.example"})
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("limited = %d %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("retry-after = %q", rec.Header().Get("Retry-After"))
	}
}

func TestRewardHistory(t *testing.T) {
	bus := &fakeBus{messages: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"reward":1}`)},
		{ID: "2-0", Payload: []byte(`{"reward":-1}`)},
		{ID: "3-0", Payload: []byte(`not json`)},
	}}
	srv, _ := newTestServer(Config{}, nil, nil, nil, bus)
	h := srv.Handler()

	_, body := do(t, h, http.MethodGet, "/api/rewards?count=2", nil)
	items := body["items"].([]any)
	if len(items) != 2 || body["next"] != "2-0" {
		t.Fatalf("page = %v", body)
	}
	_, body = do(t, h, http.MethodGet, "/api/rewards?after=2-0", nil)
	items = body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["data"] != "not json" {
		t.Fatalf("page = %v", body)
	}
	if rec, _ := do(t, h, http.MethodGet, "/api/rewards?count=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad count = %d", rec.Code)
	}
}

func TestWebSocketRelay(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte, 1)}
	hub := ws.NewHub(bus, ws.Config{Channels: []string{"rewards"}, Mode: "full", Agent: "random"}, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv, _ := newTestServer(Config{}, nil, nil, hub, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status map[string]any
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatal(err)
	}
	if status["channel"] != "status" || status["data"].(map[string]any)["mode"] != "full" {
		t.Fatalf("status = %v", status)
	}

	bus.ch <- []byte(`{"event":"step_reward","reward":1}`)
	var msg struct {
		Channel string         `json:"channel"`
		Data    map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "rewards" || msg.Data["reward"] != 1.0 {
		t.Fatalf("relayed = %+v", msg)
	}
}

func TestResultRoutesNeedStore(t *testing.T) {
	srv := NewServer(Config{Port: 0}, Handlers{
		Health: handler.NewHealthHandler(nil, quiet),
	}, nil, nil, quiet)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/episodes", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}
