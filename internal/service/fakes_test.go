package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/env"
	"github.com/alanyoungcy/tradereward/internal/features"
	"github.com/alanyoungcy/tradereward/internal/notify"
)

type fakeMarket struct{ prices []float64 }

func (m fakeMarket) Len() int          { return len(m.prices) }
func (m fakeMarket) Prices() []float64 { return m.prices }
func (m fakeMarket) Features() []features.Row {
	return make([]features.Row, len(m.prices))
}
func (m fakeMarket) Time(i int) time.Time {
	return time.Unix(1580515200, 0).UTC().Add(time.Duration(i) * time.Second)
}

// scriptedAgent replays actions and holds once they run out.
type scriptedAgent struct {
	actions []int
	i       int
	err     error
	// onAct runs before each decision with the 1-based call count.
	onAct func(n int)
}

func (a *scriptedAgent) Name() string { return "scripted" }

func (a *scriptedAgent) Act(env.Observation) (int, error) {
	if a.onAct != nil {
		a.onAct(a.i + 1)
	}
	if a.err != nil {
		return 0, a.err
	}
	if a.i >= len(a.actions) {
		return 0, nil
	}
	a.i++
	return a.actions[a.i-1], nil
}

type memEpisodes struct {
	mu   sync.Mutex
	byID map[string]domain.Episode
}

func newMemEpisodes() *memEpisodes { return &memEpisodes{byID: map[string]domain.Episode{}} }

func (m *memEpisodes) Create(_ context.Context, ep domain.Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[ep.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.byID[ep.ID] = ep
	return nil
}

func (m *memEpisodes) Finish(ctx context.Context, ep domain.Episode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[ep.ID]; !ok {
		return domain.ErrNotFound
	}
	m.byID[ep.ID] = ep
	return nil
}

func (m *memEpisodes) GetByID(_ context.Context, id string) (domain.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.byID[id]
	if !ok {
		return domain.Episode{}, domain.ErrNotFound
	}
	return ep, nil
}

func (m *memEpisodes) List(context.Context, domain.ListOpts) ([]domain.Episode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Episode
	for _, ep := range m.byID {
		out = append(out, ep)
	}
	return out, nil
}

func (m *memEpisodes) ListByRun(ctx context.Context, runID string) ([]domain.Episode, error) {
	all, _ := m.List(ctx, domain.ListOpts{})
	var out []domain.Episode
	for _, ep := range all {
		if ep.RunID == runID {
			out = append(out, ep)
		}
	}
	return out, nil
}

type memSteps struct{ steps []domain.StepResult }

func (m *memSteps) InsertBatch(ctx context.Context, steps []domain.StepResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.steps = append(m.steps, steps...)
	return nil
}

func (m *memSteps) ListByEpisode(_ context.Context, id string, _ domain.ListOpts) ([]domain.StepResult, error) {
	var out []domain.StepResult
	for _, s := range m.steps {
		if s.EpisodeID == id {
			out = append(out, s)
		}
	}
	return out, nil
}

type memTrades struct{ trades []domain.Trade }

func (m *memTrades) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.trades = append(m.trades, trades...)
	return nil
}

func (m *memTrades) ListByEpisode(_ context.Context, id string, _ domain.ListOpts) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range m.trades {
		if t.EpisodeID == id {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTrades) ListBefore(context.Context, time.Time, int) ([]domain.Trade, error) {
	return nil, nil
}

func (m *memTrades) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memPrices struct {
	price float64
	ts    time.Time
	sets  int
}

func (m *memPrices) SetPrice(_ context.Context, _ string, price float64, ts time.Time) error {
	m.price, m.ts = price, ts
	m.sets++
	return nil
}

func (m *memPrices) GetPrice(context.Context, string) (float64, time.Time, error) {
	if m.sets == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return m.price, m.ts, nil
}

type memBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
	err       error
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (m *memBus) Publish(_ context.Context, ch string, p []byte) error {
	if m.err != nil {
		return m.err
	}
	m.published[ch] = append(m.published[ch], p)
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (m *memBus) StreamAppend(_ context.Context, s string, p []byte) error {
	if m.err != nil {
		return m.err
	}
	m.streamed[s] = append(m.streamed[s], p)
	return nil
}

func (m *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memLocks struct{ held map[string]bool }

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	return func() { delete(m.held, key) }, nil
}

type memReports struct{ written []string }

func (m *memReports) WriteReport(_ context.Context, ep domain.Episode, _ []domain.StepResult) (string, error) {
	m.written = append(m.written, ep.ID)
	return "reports/" + ep.ID + ".jsonl", nil
}

type memNotifier struct{ events []string }

func (m *memNotifier) Notify(_ context.Context, msg notify.Message) error {
	m.events = append(m.events, msg.Event)
	return nil
}
