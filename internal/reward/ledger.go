package reward

import (
	"fmt"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// Ledger is the running net position and VWAP of one environment. It is a
// plain value: copy it to checkpoint, and never share one between
// environments.
type Ledger struct {
	position float64
	vwap     VWAP
}

// Fill describes how a single trade was folded into the ledger.
type Fill struct {
	Classification
	RelRPnL float64
	VWAP    VWAP // VWAP after the trade
}

// Apply folds one trade into the ledger and returns the realized relative
// PnL it produced. The ledger is left untouched when an error is returned.
func (l *Ledger) Apply(t domain.Trade) (Fill, error) {
	if err := t.Validate(); err != nil {
		return Fill{}, err
	}

	price := t.Price
	c := Classify(l.position, l.vwap, t.Amount())
	f := Fill{Classification: c}

	switch c.Kind {
	case KindOpening:
		if l.position != 0 {
			// An open position always carries a VWAP; reaching this means the
			// ledger was corrupted.
			return Fill{}, fmt.Errorf("reward: position %v has no vwap: %w", l.position, domain.ErrDegenerateVWAP)
		}
		f.VWAP = VWAPAt(price)
	case KindAccumulating:
		v, err := Blend(l.vwap, l.position, price, c.Amount)
		if err != nil {
			return Fill{}, err
		}
		f.VWAP = v
	case KindReducing:
		rel, err := Realize(l.vwap, price)
		if err != nil {
			return Fill{}, err
		}
		f.RelRPnL = rel
		// The remainder, including the newly opened side of a reversal, is
		// re-based to the trade price.
		f.VWAP = VWAPAt(price)
	}

	l.position = c.Next
	l.vwap = f.VWAP
	return f, nil
}

// Process folds trades strictly in the given order and returns the sum of
// the relative PnL they realized. Either every trade is applied or, on the
// first fault, none is.
func (l *Ledger) Process(trades []domain.Trade) (float64, error) {
	next := *l
	var rel float64
	for i, t := range trades {
		f, err := next.Apply(t)
		if err != nil {
			return 0, fmt.Errorf("reward: trade %d (%s): %w", i, t.ID, err)
		}
		rel += f.RelRPnL
	}
	*l = next
	return rel, nil
}

// Reset returns the ledger to flat with no VWAP.
func (l *Ledger) Reset() {
	*l = Ledger{}
}

// Position returns the signed net position in base-asset units.
func (l Ledger) Position() float64 {
	return l.position
}

// VWAP returns the current VWAP and whether it is defined. After a trade that
// flattens the position the VWAP holds that trade's price until the next
// opening trade overwrites it.
func (l Ledger) VWAP() (float64, bool) {
	return l.vwap.Price()
}

// Snapshot returns a read-only copy of the ledger state.
func (l Ledger) Snapshot() domain.PositionSnapshot {
	return domain.PositionSnapshot{
		Position: l.position,
		VWAP:     l.vwap.price,
		HasVWAP:  l.vwap.defined,
	}
}
