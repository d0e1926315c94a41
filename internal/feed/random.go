package feed

import (
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// RandomWalk generates a synthetic top-of-book and trade tape for offline
// runs. The mid moves by a uniform relative step of at most vol per tick.
type RandomWalk struct {
	Start  time.Time
	Price  float64
	Vol    float64
	Spread float64
	Tick   time.Duration
	Seed   uint64
}

// Generate returns n quotes and one trade per quote.
func (w RandomWalk) Generate(n int) ([]domain.Quote, []domain.TradeTick) {
	r := rand.New(rand.NewPCG(w.Seed, w.Seed^0x9e3779b97f4a7c15))
	quotes := make([]domain.Quote, n)
	trades := make([]domain.TradeTick, n)

	mid := w.Price
	ts := w.Start
	for i := 0; i < n; i++ {
		mid *= 1 + (r.Float64()-0.5)*2*w.Vol
		half := w.Spread / 2
		quotes[i] = domain.Quote{
			Timestamp: ts,
			AskPrice:  mid + half,
			AskAmount: 1 + r.Float64()*4,
			BidPrice:  mid - half,
			BidAmount: 1 + r.Float64()*4,
		}

		side, price := domain.SideBuy, mid+half
		if r.IntN(2) == 0 {
			side, price = domain.SideSell, mid-half
		}
		trades[i] = domain.TradeTick{
			Timestamp: ts,
			ID:        strconv.Itoa(i),
			Side:      side,
			Price:     price,
			Amount:    decimal.NewFromFloat(r.Float64()).Round(3),
		}
		ts = ts.Add(w.Tick)
	}
	return quotes, trades
}
