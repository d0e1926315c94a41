// Package reward turns the trades executed during an environment step into a
// bounded reward signal. A Ledger tracks the running net position and its
// volume-weighted average entry price; profit is realized only when a trade
// reduces or reverses that position. TradeCompletion owns one Ledger and maps
// the realized relative PnL of each step into [-1, 1].
package reward

import (
	"fmt"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// Kind is the classification of a trade against the current position.
type Kind int

const (
	// KindOpening opens a position from flat (or from a position without a
	// cost basis). The new VWAP is the trade price.
	KindOpening Kind = iota + 1
	// KindAccumulating leaves the sign of the position unchanged. The VWAP is
	// blended by signed base-asset size, so a partial reduce lands here too
	// and realizes nothing.
	KindAccumulating
	// KindReducing flattens or reverses the position. Relative PnL is realized
	// against the VWAP and the VWAP is re-based to the trade price.
	KindReducing
)

func (k Kind) String() string {
	switch k {
	case KindOpening:
		return "opening"
	case KindAccumulating:
		return "accumulating"
	case KindReducing:
		return "reducing"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Classification is the tagged result of Classify.
type Classification struct {
	Kind     Kind
	Position float64 // position before the trade
	Amount   float64 // signed base-asset delta of the trade
	Next     float64 // position after the trade
}

// Reversal reports whether the trade flipped the sign of a non-zero position.
func (c Classification) Reversal() bool {
	return c.Kind == KindReducing && c.Next != 0 && sign(c.Next) != sign(c.Position)
}

// Flattens reports whether the trade closed the position exactly.
func (c Classification) Flattens() bool {
	return c.Position != 0 && c.Next == 0
}

// Classify decides how a trade of signed base-asset size amount interacts with
// the current position. A flat position or one without a defined VWAP always
// classifies as opening; otherwise a trade that keeps the sign of the position
// accumulates, whichever direction it moves the size, and anything else
// (an exact flatten or a reversal) reduces.
func Classify(position float64, vwap VWAP, amount float64) Classification {
	c := Classification{
		Position: position,
		Amount:   amount,
		Next:     position + amount,
	}
	switch {
	case position == 0 || !vwap.Defined():
		c.Kind = KindOpening
	case sign(c.Next) == sign(position):
		c.Kind = KindAccumulating
	default:
		c.Kind = KindReducing
	}
	return c
}

// VWAP is an optional volume-weighted average entry price. The zero value is
// undefined, which is distinct from a defined price.
type VWAP struct {
	price   float64
	defined bool
}

// UndefinedVWAP returns a VWAP with no value.
func UndefinedVWAP() VWAP {
	return VWAP{}
}

// VWAPAt returns a defined VWAP equal to price.
func VWAPAt(price float64) VWAP {
	return VWAP{price: price, defined: true}
}

// Defined reports whether the VWAP holds a value.
func (v VWAP) Defined() bool {
	return v.defined
}

// Price returns the VWAP value and whether it is defined.
func (v VWAP) Price() (float64, bool) {
	return v.price, v.defined
}

// Blend returns the volume-weighted average of the current VWAP over
// position and price over amount. The resulting position must be non-zero.
func Blend(vwap VWAP, position, price, amount float64) (VWAP, error) {
	next := position + amount
	if next == 0 {
		return VWAP{}, fmt.Errorf("reward: blend into flat position: %w", domain.ErrDegenerateVWAP)
	}
	if position != 0 && !vwap.defined {
		return VWAP{}, fmt.Errorf("reward: blend without vwap for position %v: %w", position, domain.ErrDegenerateVWAP)
	}
	return VWAPAt((vwap.price*position + price*amount) / next), nil
}

// Realize returns the fractional return of closing at price against vwap.
// The VWAP must be defined and strictly positive.
func Realize(vwap VWAP, price float64) (float64, error) {
	if !vwap.defined || vwap.price <= 0 {
		return 0, fmt.Errorf("reward: realize against vwap %v (defined=%t): %w",
			vwap.price, vwap.defined, domain.ErrDegenerateVWAP)
	}
	return (price - vwap.price) / vwap.price, nil
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
