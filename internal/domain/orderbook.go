package domain

import "time"

// Quote is the top of a book snapshot: best ask and best bid with their sizes.
type Quote struct {
	Timestamp time.Time
	AskPrice  float64
	AskAmount float64
	BidPrice  float64
	BidAmount float64
}

// Mid returns the midpoint between the best ask and best bid.
func (q Quote) Mid() float64 {
	return (q.AskPrice + q.BidPrice) / 2
}

// Spread returns best ask minus best bid.
func (q Quote) Spread() float64 {
	return q.AskPrice - q.BidPrice
}
