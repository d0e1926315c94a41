package env

import (
	"fmt"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// dust is the smallest notional worth executing.
const dust = 1e-9

// Portfolio holds the quote and base balances of one simulated account.
type Portfolio struct {
	quote     float64
	base      float64
	initQuote float64
	initBase  float64
}

// NewPortfolio creates a portfolio with the given starting balances.
func NewPortfolio(quote, base float64) *Portfolio {
	return &Portfolio{quote: quote, base: base, initQuote: quote, initBase: base}
}

// Quote is the quote-currency balance.
func (p *Portfolio) Quote() float64 { return p.quote }

// Base is the base-asset balance.
func (p *Portfolio) Base() float64 { return p.base }

// NetWorth values the portfolio in quote currency at price.
func (p *Portfolio) NetWorth(price float64) float64 {
	return p.quote + p.base*price
}

// Reset restores the starting balances.
func (p *Portfolio) Reset() {
	p.quote, p.base = p.initQuote, p.initBase
}

// Execute fills an order for fraction of the available balance at price and
// returns the resulting trade. Buys spend quote, sells spend base; the trade
// quantity is always the quote notional. There are no fees or slippage.
func (p *Portfolio) Execute(side domain.Side, fraction, price float64) (domain.Trade, error) {
	if fraction <= 0 || fraction > 1 {
		return domain.Trade{}, fmt.Errorf("env: order fraction %v: %w", fraction, domain.ErrInvalidAction)
	}
	if !(price > 0) {
		return domain.Trade{}, fmt.Errorf("env: price %v: %w", price, domain.ErrInvalidTrade)
	}

	var notional float64
	switch side {
	case domain.SideBuy:
		notional = p.quote * fraction
	case domain.SideSell:
		notional = p.base * fraction * price
	default:
		return domain.Trade{}, fmt.Errorf("env: side %q: %w", side, domain.ErrInvalidAction)
	}
	if notional < dust {
		return domain.Trade{}, fmt.Errorf("env: %s %v of balance: %w", side, fraction, domain.ErrInsufficient)
	}

	size := notional / price
	if side == domain.SideBuy {
		p.quote -= notional
		p.base += size
	} else {
		p.quote += notional
		p.base -= size
	}
	return domain.Trade{Side: side, Price: price, Quantity: notional}, nil
}

// ExecuteSize fills an order for a fixed base-asset size, capped by what the
// account can fund. Bracket exits use it to unwind exactly what their entry
// filled.
func (p *Portfolio) ExecuteSize(side domain.Side, size, price float64) (domain.Trade, error) {
	if !(price > 0) {
		return domain.Trade{}, fmt.Errorf("env: price %v: %w", price, domain.ErrInvalidTrade)
	}
	var fraction float64
	switch side {
	case domain.SideBuy:
		if p.quote < dust {
			return domain.Trade{}, fmt.Errorf("env: buy %v: %w", size, domain.ErrInsufficient)
		}
		fraction = size * price / p.quote
	case domain.SideSell:
		if p.base*price < dust {
			return domain.Trade{}, fmt.Errorf("env: sell %v: %w", size, domain.ErrInsufficient)
		}
		fraction = size / p.base
	default:
		return domain.Trade{}, fmt.Errorf("env: side %q: %w", side, domain.ErrInvalidAction)
	}
	if !(fraction > 0) {
		return domain.Trade{}, fmt.Errorf("env: size %v: %w", size, domain.ErrInvalidAction)
	}
	return p.Execute(side, min(fraction, 1), price)
}
