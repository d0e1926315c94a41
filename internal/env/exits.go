package env

import "github.com/alanyoungcy/tradereward/internal/domain"

// exit is the live bracket of one filled entry. It unwinds the entry's base
// size on the opposite side.
type exit struct {
	side    domain.Side
	size    float64
	stop    float64 // 0 when the leg is disabled
	target  float64
	expires int64 // first step at which the exit is gone; 0 never
}

func newExit(entry domain.Trade, step int64, b Bracket) exit {
	x := exit{size: entry.Quantity / entry.Price}
	long := entry.Side == domain.SideBuy
	if long {
		x.side = domain.SideSell
	} else {
		x.side = domain.SideBuy
	}
	if b.StopLoss > 0 {
		if long {
			x.stop = entry.Price * (1 - b.StopLoss)
		} else {
			x.stop = entry.Price * (1 + b.StopLoss)
		}
	}
	if b.TakeProfit > 0 {
		if long {
			x.target = entry.Price * (1 + b.TakeProfit)
		} else {
			x.target = entry.Price * (1 - b.TakeProfit)
		}
	}
	if b.Duration > 0 {
		x.expires = step + int64(b.Duration) + 1
	}
	return x
}

func (x exit) expired(step int64) bool {
	return x.expires > 0 && step >= x.expires
}

// hit reports whether price reached the stop or the target. A sell exit
// protects a long, a buy exit protects a short.
func (x exit) hit(price float64) bool {
	if x.side == domain.SideSell {
		return (x.stop > 0 && price <= x.stop) || (x.target > 0 && price >= x.target)
	}
	return (x.stop > 0 && price >= x.stop) || (x.target > 0 && price <= x.target)
}
