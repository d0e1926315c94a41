package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeTick is a single public trade printed by the exchange, as recorded in
// a historical trades dataset.
type TradeTick struct {
	Timestamp time.Time
	ID        string
	Side      Side
	Price     float64
	Amount    decimal.Decimal // base-asset amount, kept exact for volume sums
}

// Candle is an OHLCV bar for one resampling interval.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
