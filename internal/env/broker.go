package env

import "github.com/alanyoungcy/tradereward/internal/domain"

// Clock counts environment steps from zero.
type Clock struct {
	step int64
}

// Step is the current step.
func (c *Clock) Step() int64 { return c.step }

// Increment advances to the next step.
func (c *Clock) Increment() { c.step++ }

// Reset rewinds to step zero.
func (c *Clock) Reset() { c.step = 0 }

// Broker records executed trades keyed by the step they happened in.
type Broker struct {
	trades map[int64][]domain.Trade
	total  int
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{trades: make(map[int64][]domain.Trade)}
}

// Record stores t under its step.
func (b *Broker) Record(t domain.Trade) {
	b.trades[t.Step] = append(b.trades[t.Step], t)
	b.total++
}

// TradesAt returns the trades executed at step, in execution order.
func (b *Broker) TradesAt(step int64) []domain.Trade {
	return b.trades[step]
}

// All returns every recorded trade ordered by step.
func (b *Broker) All() []domain.Trade {
	out := make([]domain.Trade, 0, b.total)
	for step := int64(0); len(out) < b.total; step++ {
		out = append(out, b.trades[step]...)
	}
	return out
}

// Len is the number of recorded trades.
func (b *Broker) Len() int { return b.total }

// Reset drops every recorded trade.
func (b *Broker) Reset() {
	clear(b.trades)
	b.total = 0
}
