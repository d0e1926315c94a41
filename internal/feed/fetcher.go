// Package feed loads historical market data and resamples it into the fixed
// interval price, feature and candle series that drive the environment.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// Default tardis.dev datasets for one day of BTCUSDT perpetual futures.
const (
	DefaultQuotesURL = "https://datasets.tardis.dev/v1/binance-futures/book_snapshot_25/2020/02/01/BTCUSDT.csv.gz"
	DefaultTradesURL = "https://datasets.tardis.dev/v1/binance-futures/trades/2020/02/01/BTCUSDT.csv.gz"
)

const downloadRateKey = "ratelimit:tardis"

// Fetcher downloads dataset files once and serves them from a local
// directory afterwards. When blob storage is configured it is used as a
// shared second-level cache so other hosts skip the download.
type Fetcher struct {
	httpClient *http.Client
	dir        string
	blobPrefix string
	reader     domain.BlobReader
	writer     domain.BlobWriter
	limiter    domain.RateLimiter
	logger     *slog.Logger
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithBlobCache stores and looks up downloads under prefix in object storage.
func WithBlobCache(reader domain.BlobReader, writer domain.BlobWriter, prefix string) FetcherOption {
	return func(f *Fetcher) {
		f.reader = reader
		f.writer = writer
		f.blobPrefix = prefix
	}
}

// WithRateLimiter throttles remote downloads.
func WithRateLimiter(l domain.RateLimiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = l }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// NewFetcher creates a Fetcher that keeps files in dir.
func NewFetcher(dir string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		dir:        dir,
		logger:     logger.With(slog.String("component", "feed_fetcher")),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the local path of name, downloading it from url only when it
// is neither on disk nor in the blob cache.
func (f *Fetcher) Fetch(ctx context.Context, url, name string) (string, error) {
	dest := filepath.Join(f.dir, name)
	if _, err := os.Stat(dest); err == nil {
		f.logger.Debug("feed: using local file", slog.String("path", dest))
		return dest, nil
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("feed: create dir %s: %w", f.dir, err)
	}

	key := path.Join(f.blobPrefix, name)
	if f.reader != nil {
		ok, err := f.reader.Exists(ctx, key)
		if err != nil {
			f.logger.Warn("feed: blob cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if ok {
			if err := f.fromBlob(ctx, key, dest); err != nil {
				return "", err
			}
			f.logger.Info("feed: restored from blob cache", slog.String("key", key))
			return dest, nil
		}
	}

	if err := f.download(ctx, url, dest); err != nil {
		return "", err
	}

	if f.writer != nil {
		if err := f.toBlob(ctx, dest, key); err != nil {
			f.logger.Warn("feed: blob cache upload failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return dest, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, downloadRateKey); err != nil {
			return fmt.Errorf("feed: rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("feed: build request: %w", err)
	}
	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("feed: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("feed: GET %s: status %d: %s", url, resp.StatusCode, body)
	}

	n, err := writeAtomic(dest, resp.Body)
	if err != nil {
		return err
	}
	f.logger.Info("feed: downloaded",
		slog.String("url", url),
		slog.String("path", dest),
		slog.Int64("bytes", n),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (f *Fetcher) fromBlob(ctx context.Context, key, dest string) error {
	rc, err := f.reader.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("feed: get blob %s: %w", key, err)
	}
	defer rc.Close()
	_, err = writeAtomic(dest, rc)
	return err
}

func (f *Fetcher) toBlob(ctx context.Context, src, key string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()
	return f.writer.PutMultipart(ctx, key, file, 0)
}

// writeAtomic copies r into a temp file next to dest and renames it into
// place so an interrupted download never leaves a truncated cache entry.
func writeAtomic(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("feed: create temp file: %w", err)
	}
	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("feed: write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("feed: rename %s: %w", dest, err)
	}
	return n, nil
}
