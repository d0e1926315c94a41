package env

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// Bracket attaches exits to a filled entry. StopLoss and TakeProfit are
// fractions of the entry price (0 disables that leg). Duration is the number
// of steps the exits stay live; 0 keeps them until they trigger.
type Bracket struct {
	StopLoss   float64
	TakeProfit float64
	Duration   int
}

// Active reports whether the bracket has any exit leg.
func (b Bracket) Active() bool {
	return b.StopLoss > 0 || b.TakeProfit > 0
}

func (b Bracket) validate() error {
	for _, v := range []float64{b.StopLoss, b.TakeProfit} {
		if math.IsNaN(v) || v < 0 || v >= 1 {
			return fmt.Errorf("env: bracket level %v outside [0, 1)", v)
		}
	}
	if b.Duration < 0 {
		return fmt.Errorf("env: bracket duration %d is negative", b.Duration)
	}
	return nil
}

// BracketGrid is every combination of the given stop, take-profit and
// duration values. An empty slice counts as the single value 0.
func BracketGrid(stops, takes []float64, durations []int) []Bracket {
	if len(stops) == 0 && len(takes) == 0 {
		return nil
	}
	if len(stops) == 0 {
		stops = []float64{0}
	}
	if len(takes) == 0 {
		takes = []float64{0}
	}
	if len(durations) == 0 {
		durations = []int{0}
	}
	out := make([]Bracket, 0, len(stops)*len(takes)*len(durations))
	for _, s := range stops {
		for _, tp := range takes {
			for _, d := range durations {
				out = append(out, Bracket{StopLoss: s, TakeProfit: tp, Duration: d})
			}
		}
	}
	return out
}

// Order is a decoded action.
type Order struct {
	Side     domain.Side
	Fraction float64
	Bracket  Bracket
}

// ActionScheme maps discrete actions to orders. Action 0 holds; every trade
// size, and within it every bracket, then contributes a buy action followed
// by a sell action.
type ActionScheme struct {
	sizes    []float64
	brackets []Bracket
}

// DefaultTradeSizes are the balance fractions offered to the agent.
var DefaultTradeSizes = []float64{0.1, 0.25, 0.5}

// NewActionScheme validates the trade sizes, each a fraction in (0, 1].
// Without brackets every order is a plain market order.
func NewActionScheme(sizes []float64, brackets ...Bracket) (*ActionScheme, error) {
	if len(sizes) == 0 {
		return nil, fmt.Errorf("env: no trade sizes")
	}
	for _, s := range sizes {
		if s <= 0 || s > 1 {
			return nil, fmt.Errorf("env: trade size %v outside (0, 1]", s)
		}
	}
	for _, b := range brackets {
		if err := b.validate(); err != nil {
			return nil, err
		}
	}
	return &ActionScheme{
		sizes:    append([]float64(nil), sizes...),
		brackets: append([]Bracket(nil), brackets...),
	}, nil
}

func (a *ActionScheme) perSize() int {
	return max(1, len(a.brackets))
}

// Size is the number of discrete actions.
func (a *ActionScheme) Size() int {
	return 1 + 2*len(a.sizes)*a.perSize()
}

// Decode returns the order for action; ok is false for hold.
func (a *ActionScheme) Decode(action int) (o Order, ok bool, err error) {
	if action < 0 || action >= a.Size() {
		return Order{}, false, fmt.Errorf("env: action %d of %d: %w", action, a.Size(), domain.ErrInvalidAction)
	}
	if action == 0 {
		return Order{}, false, nil
	}
	i := action - 1
	o.Side = domain.SideBuy
	if i%2 == 1 {
		o.Side = domain.SideSell
	}
	j := i / 2
	o.Fraction = a.sizes[j/a.perSize()]
	if len(a.brackets) > 0 {
		o.Bracket = a.brackets[j%a.perSize()]
	}
	return o, true, nil
}
