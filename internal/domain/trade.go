package domain

import (
	"fmt"
	"math"
	"time"
)

// Side indicates whether a trade bought or sold the base asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Sign returns +1 for a buy and -1 for a sell.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Trade is an executed fill produced by the environment's broker.
type Trade struct {
	ID        string    `json:"id"`
	EpisodeID string    `json:"episode_id"`
	Step      int64     `json:"step"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`    // quote per unit of base
	Quantity  float64   `json:"quantity"` // quote-currency notional
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects trades that would corrupt the running position.
func (t Trade) Validate() error {
	if !t.Side.Valid() {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidTrade, t.Side)
	}
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("%w: price must be positive and finite, got %v", ErrInvalidTrade, t.Price)
	}
	if math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive and finite, got %v", ErrInvalidTrade, t.Quantity)
	}
	return nil
}

// Amount returns the signed base-asset delta of the trade: notional divided
// by price, positive for a buy and negative for a sell.
func (t Trade) Amount() float64 {
	return t.Side.Sign() * t.Quantity / t.Price
}

// IsBuy reports whether the trade bought the base asset.
func (t Trade) IsBuy() bool {
	return t.Side == SideBuy
}
