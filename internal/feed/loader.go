package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/features"
)

// Source names the quotes and trades datasets to load.
type Source struct {
	QuotesURL string
	TradesURL string
	Interval  time.Duration
	NRows     int
	Features  features.Params
}

// Load fetches both datasets concurrently, parses them, extracts features
// from the raw quotes and resamples everything into a TimeBasedFeed.
func Load(ctx context.Context, f *Fetcher, src Source, logger *slog.Logger) (*TimeBasedFeed, error) {
	var (
		quotes []domain.Quote
		trades []domain.TradeTick
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := f.Fetch(gctx, src.QuotesURL, CacheName(src.QuotesURL))
		if err != nil {
			return err
		}
		quotes, err = readFile(p, func(file *os.File) ([]domain.Quote, error) {
			return ReadQuotes(file, src.NRows)
		})
		return err
	})
	g.Go(func() error {
		p, err := f.Fetch(gctx, src.TradesURL, CacheName(src.TradesURL))
		if err != nil {
			return err
		}
		trades, err = readFile(p, func(file *os.File) ([]domain.TradeTick, error) {
			return ReadTrades(file, src.NRows)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mid := make([]float64, len(quotes))
	for i, q := range quotes {
		mid[i] = q.Mid()
	}
	tf, err := NewTimeBasedFeed(quotes, trades, features.Extract(mid, src.Features), src.Interval)
	if err != nil {
		return nil, err
	}

	logger.Info("feed: loaded",
		slog.Int("quotes", len(quotes)),
		slog.Int("trades", len(trades)),
		slog.Int("buckets", tf.Len()),
		slog.Duration("interval", src.Interval),
	)
	return tf, nil
}

// CacheName flattens the path of a dataset URL into a file name, so
// ".../trades/2020/02/01/BTCUSDT.csv.gz" becomes
// "binance-futures_trades_2020_02_01_BTCUSDT.csv.gz" when the path has a
// leading "/v1/" version segment.
func CacheName(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimPrefix(strings.TrimPrefix(p, "/"), "v1/")
	return strings.ReplaceAll(p, "/", "_")
}

func readFile[T any](path string, read func(*os.File) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s: %w", path, err)
	}
	defer file.Close()
	return read(file)
}
