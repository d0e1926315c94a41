package feed

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/features"
)

// ErrEmptyFeed is returned when there are no quotes to resample.
var ErrEmptyFeed = errors.New("feed: no quotes")

// TimeBasedFeed buckets quotes, trades and tick-level features into fixed
// intervals. Each series keeps the last value seen in a bucket and carries it
// forward through empty buckets.
type TimeBasedFeed struct {
	interval time.Duration
	start    time.Time
	mid      []float64
	features []features.Row
	candles  []domain.Candle
}

// NewTimeBasedFeed resamples the inputs. Features are computed on the raw
// quote mid before resampling, one row per quote.
func NewTimeBasedFeed(quotes []domain.Quote, trades []domain.TradeTick, rows []features.Row, interval time.Duration) (*TimeBasedFeed, error) {
	if len(quotes) == 0 {
		return nil, ErrEmptyFeed
	}
	if interval <= 0 {
		return nil, fmt.Errorf("feed: interval must be positive, got %s", interval)
	}
	if len(rows) != len(quotes) {
		return nil, fmt.Errorf("feed: %d feature rows for %d quotes", len(rows), len(quotes))
	}

	f := &TimeBasedFeed{interval: interval}
	f.start, f.mid, f.features = resampleQuotes(quotes, rows, interval)
	f.candles = resampleTrades(trades, interval)
	return f, nil
}

// Interval is the bucket width.
func (f *TimeBasedFeed) Interval() time.Duration { return f.interval }

// Len is the number of buckets in the price and feature series.
func (f *TimeBasedFeed) Len() int { return len(f.mid) }

// Time returns the start of bucket i.
func (f *TimeBasedFeed) Time(i int) time.Time {
	return f.start.Add(time.Duration(i) * f.interval)
}

// Prices is the mid price per bucket.
func (f *TimeBasedFeed) Prices() []float64 { return f.mid }

// Features is the feature row per bucket.
func (f *TimeBasedFeed) Features() []features.Row { return f.features }

// Candles is the OHLCV series of the trades, on their own bucket range.
func (f *TimeBasedFeed) Candles() []domain.Candle { return f.candles }

// bucketSpan returns the first bucket and the bucket count covering every
// timestamp. Dataset rows are not guaranteed to be ordered by the exchange
// timestamp, so the range is taken over all of them.
func bucketSpan(n int, at func(int) time.Time, interval time.Duration) (time.Time, int) {
	lo, hi := at(0), at(0)
	for i := 1; i < n; i++ {
		ts := at(i)
		if ts.Before(lo) {
			lo = ts
		}
		if ts.After(hi) {
			hi = ts
		}
	}
	start := lo.Truncate(interval)
	return start, int(hi.Truncate(interval).Sub(start)/interval) + 1
}

func resampleQuotes(quotes []domain.Quote, rows []features.Row, interval time.Duration) (time.Time, []float64, []features.Row) {
	start, n := bucketSpan(len(quotes), func(i int) time.Time { return quotes[i].Timestamp }, interval)

	ask := nanSeries(n)
	bid := nanSeries(n)
	lr := nanSeries(n)
	rsi := nanSeries(n)
	macd := nanSeries(n)
	for i, q := range quotes {
		b := int(q.Timestamp.Truncate(interval).Sub(start) / interval)
		setLast(ask, b, q.AskPrice)
		setLast(bid, b, q.BidPrice)
		setLast(lr, b, rows[i].LR)
		setLast(rsi, b, rows[i].RSI)
		setLast(macd, b, rows[i].MACD)
	}
	for _, s := range [][]float64{ask, bid, lr, rsi, macd} {
		forwardFill(s)
	}

	mid := make([]float64, n)
	out := make([]features.Row, n)
	for i := range mid {
		mid[i] = (ask[i] + bid[i]) / 2
		out[i] = features.Row{LR: lr[i], RSI: rsi[i], MACD: macd[i]}
	}
	return start, mid, out
}

func resampleTrades(trades []domain.TradeTick, interval time.Duration) []domain.Candle {
	if len(trades) == 0 {
		return nil
	}
	start, n := bucketSpan(len(trades), func(i int) time.Time { return trades[i].Timestamp }, interval)

	open := nanSeries(n)
	high := nanSeries(n)
	low := nanSeries(n)
	closing := nanSeries(n)
	volume := make([]decimal.Decimal, n)
	for _, t := range trades {
		b := int(t.Timestamp.Truncate(interval).Sub(start) / interval)
		if math.IsNaN(open[b]) {
			open[b], high[b], low[b] = t.Price, t.Price, t.Price
		}
		high[b] = math.Max(high[b], t.Price)
		low[b] = math.Min(low[b], t.Price)
		closing[b] = t.Price
		volume[b] = volume[b].Add(t.Amount)
	}
	forwardFill(closing)

	candles := make([]domain.Candle, n)
	for i := range candles {
		c := domain.Candle{
			Date:   start.Add(time.Duration(i) * interval),
			Open:   open[i],
			High:   high[i],
			Low:    low[i],
			Close:  closing[i],
			Volume: volume[i].InexactFloat64(),
		}
		if math.IsNaN(c.Open) {
			c.Open, c.High, c.Low = c.Close, c.Close, c.Close
		}
		candles[i] = c
	}
	return candles
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// setLast records v in bucket b unless v is NaN.
func setLast(s []float64, b int, v float64) {
	if !math.IsNaN(v) {
		s[b] = v
	}
}

func forwardFill(s []float64) {
	for i := 1; i < len(s); i++ {
		if math.IsNaN(s[i]) {
			s[i] = s[i-1]
		}
	}
}
