package reward

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// units builds a trade for the given base-asset size; quantity is notional.
func units(side domain.Side, price, size float64) domain.Trade {
	return domain.Trade{ID: "t", Side: side, Price: price, Quantity: price * size}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		position float64
		vwap     VWAP
		amount   float64
		want     Kind
		next     float64
	}{
		{"open long from flat", 0, UndefinedVWAP(), 10, KindOpening, 10},
		{"open short from flat", 0, UndefinedVWAP(), -10, KindOpening, -10},
		{"flat with stale vwap", 0, VWAPAt(70), 5, KindOpening, 5},
		{"no vwap on open position", 10, UndefinedVWAP(), 5, KindOpening, 15},
		{"add to long", 10, VWAPAt(50), 5, KindAccumulating, 15},
		{"add to short", -10, VWAPAt(50), -5, KindAccumulating, -15},
		{"reduce long keeps sign", 10, VWAPAt(50), -4, KindAccumulating, 6},
		{"flatten long", 10, VWAPAt(50), -10, KindReducing, 0},
		{"reverse long", 10, VWAPAt(50), -15, KindReducing, -5},
		{"reduce short keeps sign", -10, VWAPAt(50), 4, KindAccumulating, -6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.position, tt.vwap, tt.amount)
			if c.Kind != tt.want {
				t.Fatalf("kind = %v, want %v", c.Kind, tt.want)
			}
			if c.Next != tt.next {
				t.Fatalf("next = %v, want %v", c.Next, tt.next)
			}
		})
	}
}

func TestClassificationFlags(t *testing.T) {
	if c := Classify(10, VWAPAt(50), -15); !c.Reversal() || c.Flattens() {
		t.Fatalf("reverse: reversal=%t flattens=%t", c.Reversal(), c.Flattens())
	}
	if c := Classify(10, VWAPAt(50), -10); c.Reversal() || !c.Flattens() {
		t.Fatalf("flatten: reversal=%t flattens=%t", c.Reversal(), c.Flattens())
	}
	if c := Classify(10, VWAPAt(50), -3); c.Reversal() || c.Flattens() {
		t.Fatalf("reduce: reversal=%t flattens=%t", c.Reversal(), c.Flattens())
	}
}

func TestBlend(t *testing.T) {
	v, err := Blend(VWAPAt(50), 100, 60, 50)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.Price()
	if !ok || !approx(got, (50.0*100+60.0*50)/150) {
		t.Fatalf("blend = %v (%t)", got, ok)
	}

	if _, err := Blend(VWAPAt(50), 100, 60, -100); !errors.Is(err, domain.ErrDegenerateVWAP) {
		t.Fatalf("blend into flat: err = %v", err)
	}
	if _, err := Blend(UndefinedVWAP(), 100, 60, 10); !errors.Is(err, domain.ErrDegenerateVWAP) {
		t.Fatalf("blend without vwap: err = %v", err)
	}
}

func TestRealize(t *testing.T) {
	rel, err := Realize(VWAPAt(50), 70)
	if err != nil {
		t.Fatal(err)
	}
	if rel != 0.4 {
		t.Fatalf("rel = %v, want 0.4", rel)
	}
	for _, v := range []VWAP{UndefinedVWAP(), VWAPAt(0), VWAPAt(-1)} {
		if _, err := Realize(v, 70); !errors.Is(err, domain.ErrDegenerateVWAP) {
			t.Fatalf("realize against %+v: err = %v", v, err)
		}
	}
}

func TestLedgerOpenAndClose(t *testing.T) {
	var l Ledger
	rel, err := l.Process([]domain.Trade{units(domain.SideBuy, 50, 100)})
	if err != nil {
		t.Fatal(err)
	}
	if rel != 0 || l.Position() != 100 {
		t.Fatalf("after open: rel=%v position=%v", rel, l.Position())
	}
	if v, ok := l.VWAP(); !ok || v != 50 {
		t.Fatalf("after open: vwap=%v (%t)", v, ok)
	}

	rel, err = l.Process([]domain.Trade{units(domain.SideSell, 70, 100)})
	if err != nil {
		t.Fatal(err)
	}
	if rel != (70.0-50.0)/50.0 {
		t.Fatalf("rel = %v, want 0.4", rel)
	}
	if l.Position() != 0 {
		t.Fatalf("position = %v, want 0", l.Position())
	}
}

func TestLedgerAccumulate(t *testing.T) {
	var l Ledger
	rel, err := l.Process([]domain.Trade{
		units(domain.SideBuy, 50, 100),
		units(domain.SideBuy, 60, 50),
	})
	if err != nil {
		t.Fatal(err)
	}
	if rel != 0 {
		t.Fatalf("rel = %v, want 0", rel)
	}
	if l.Position() != 150 {
		t.Fatalf("position = %v, want 150", l.Position())
	}
	v, _ := l.VWAP()
	if !approx(v, 160.0/3) {
		t.Fatalf("vwap = %v, want 53.33", v)
	}
}

func TestLedgerSameDirectionOrderIndependent(t *testing.T) {
	trades := []domain.Trade{
		units(domain.SideSell, 50, 100),
		units(domain.SideSell, 60, 50),
		units(domain.SideSell, 40, 25),
		units(domain.SideSell, 55, 10),
	}
	var notional, size float64
	for _, tr := range trades {
		notional += tr.Quantity
		size += tr.Quantity / tr.Price
	}
	want := notional / size

	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}}
	for _, order := range orders {
		var l Ledger
		for _, i := range order {
			if _, err := l.Apply(trades[i]); err != nil {
				t.Fatal(err)
			}
		}
		v, _ := l.VWAP()
		if !approx(v, want) {
			t.Fatalf("order %v: vwap = %v, want %v", order, v, want)
		}
		if !approx(l.Position(), -size) {
			t.Fatalf("order %v: position = %v, want %v", order, l.Position(), -size)
		}
	}
}

func TestLedgerFlattenLeavesStaleVWAP(t *testing.T) {
	var l Ledger
	if _, err := l.Process([]domain.Trade{
		units(domain.SideBuy, 50, 100),
		units(domain.SideSell, 70, 100),
	}); err != nil {
		t.Fatal(err)
	}
	if v, ok := l.VWAP(); !ok || v != 70 {
		t.Fatalf("stale vwap = %v (%t), want 70", v, ok)
	}

	f, err := l.Apply(units(domain.SideBuy, 80, 10))
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != KindOpening || f.RelRPnL != 0 {
		t.Fatalf("reopen: kind=%v rel=%v", f.Kind, f.RelRPnL)
	}
	if v, _ := l.VWAP(); v != 80 {
		t.Fatalf("vwap after reopen = %v, want 80", v)
	}
}

// A reversing trade re-bases the whole remaining position to the trade price
// instead of tracking the closed and newly opened parts separately. This is
// an accepted approximation.
func TestLedgerReversalRebasesToTradePrice(t *testing.T) {
	var l Ledger
	rel, err := l.Process([]domain.Trade{
		units(domain.SideBuy, 50, 100),
		units(domain.SideSell, 60, 150),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rel, 0.2) {
		t.Fatalf("rel = %v, want 0.2", rel)
	}
	if !approx(l.Position(), -50) {
		t.Fatalf("position = %v, want -50", l.Position())
	}
	if v, _ := l.VWAP(); v != 60 {
		t.Fatalf("vwap = %v, want 60", v)
	}

	// Closing the short at 66 realizes against the re-based 60.
	rel, err = l.Process([]domain.Trade{units(domain.SideBuy, 66, 50)})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rel, 0.1) {
		t.Fatalf("rel = %v, want 0.1", rel)
	}
}

// Relative PnL is (price - vwap) / vwap regardless of the side being closed.
func TestLedgerShortCloseUsesSameFormula(t *testing.T) {
	var l Ledger
	rel, err := l.Process([]domain.Trade{
		units(domain.SideSell, 50, 100),
		units(domain.SideBuy, 40, 100),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rel, -0.2) {
		t.Fatalf("rel = %v, want -0.2", rel)
	}
	if l.Position() != 0 {
		t.Fatalf("position = %v, want 0", l.Position())
	}
}

func TestLedgerEmptyBatch(t *testing.T) {
	l := Ledger{position: 12, vwap: VWAPAt(31)}
	before := l.Snapshot()
	rel, err := l.Process(nil)
	if err != nil {
		t.Fatal(err)
	}
	if rel != 0 || l.Snapshot() != before {
		t.Fatalf("rel=%v snapshot=%+v, want 0 and %+v", rel, l.Snapshot(), before)
	}
}

func TestLedgerSumsRealizedPerCall(t *testing.T) {
	var l Ledger
	rel, err := l.Process([]domain.Trade{
		units(domain.SideBuy, 100, 10),
		units(domain.SideSell, 110, 10),
		units(domain.SideBuy, 100, 5),
		units(domain.SideSell, 110, 5),
	})
	if err != nil {
		t.Fatal(err)
	}
	// Two round trips, each closing 10% above its entry.
	if !approx(rel, 0.1+0.1) {
		t.Fatalf("rel = %v, want 0.2", rel)
	}
}

// A sell that shrinks a long without flattening it keeps the sign of the
// position, so it blends into the VWAP and realizes nothing.
func TestLedgerPartialReduceBlends(t *testing.T) {
	var l Ledger
	if _, err := l.Process([]domain.Trade{units(domain.SideBuy, 50, 100)}); err != nil {
		t.Fatal(err)
	}

	f, err := l.Apply(units(domain.SideSell, 60, 40))
	if err != nil {
		t.Fatal(err)
	}
	if f.Kind != KindAccumulating || f.RelRPnL != 0 {
		t.Fatalf("partial reduce: kind=%v rel=%v", f.Kind, f.RelRPnL)
	}
	if !approx(l.Position(), 60) {
		t.Fatalf("position = %v, want 60", l.Position())
	}
	v, ok := l.VWAP()
	if !ok || !approx(v, (5000.0-2400.0)/60) {
		t.Fatalf("vwap = %v (%t), want 43.33", v, ok)
	}

	// Closing the rest realizes against the blended price.
	rel, err := l.Process([]domain.Trade{units(domain.SideSell, 60, 60)})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(rel, (60-v)/v) {
		t.Fatalf("rel = %v, want %v", rel, (60-v)/v)
	}
}

func TestLedgerRejectsMalformedTradeAtomically(t *testing.T) {
	var l Ledger
	if _, err := l.Process([]domain.Trade{units(domain.SideBuy, 50, 100)}); err != nil {
		t.Fatal(err)
	}
	before := l.Snapshot()

	bad := []domain.Trade{
		{ID: "zero-price", Side: domain.SideBuy, Price: 0, Quantity: 10},
		{ID: "neg-qty", Side: domain.SideSell, Price: 10, Quantity: -1},
		{ID: "nan", Side: domain.SideSell, Price: math.NaN(), Quantity: 1},
		{ID: "side", Side: "hold", Price: 10, Quantity: 1},
	}
	for _, b := range bad {
		_, err := l.Process([]domain.Trade{units(domain.SideSell, 60, 10), b})
		if !errors.Is(err, domain.ErrInvalidTrade) {
			t.Fatalf("%s: err = %v, want ErrInvalidTrade", b.ID, err)
		}
		if l.Snapshot() != before {
			t.Fatalf("%s: ledger mutated to %+v", b.ID, l.Snapshot())
		}
	}
}

func TestLedgerDetectsMissingVWAP(t *testing.T) {
	l := Ledger{position: 10}
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		if _, err := l.Apply(units(side, 50, 1)); !errors.Is(err, domain.ErrDegenerateVWAP) {
			t.Fatalf("%s: err = %v, want ErrDegenerateVWAP", side, err)
		}
	}
	if l.Position() != 10 {
		t.Fatalf("position = %v, want 10", l.Position())
	}
}

func TestLedgerReset(t *testing.T) {
	var l Ledger
	if _, err := l.Process([]domain.Trade{
		units(domain.SideBuy, 50, 100),
		units(domain.SideSell, 45, 30),
	}); err != nil {
		t.Fatal(err)
	}
	l.Reset()
	if l.Position() != 0 {
		t.Fatalf("position = %v, want 0", l.Position())
	}
	if _, ok := l.VWAP(); ok {
		t.Fatal("vwap defined after reset")
	}
	if _, err := l.Apply(units(domain.SideSell, 42, 3)); err != nil {
		t.Fatal(err)
	}
	if v, _ := l.VWAP(); v != 42 {
		t.Fatalf("vwap = %v, want 42", v)
	}
}
