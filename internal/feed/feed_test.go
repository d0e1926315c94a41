package feed

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradereward/internal/domain"
	"github.com/alanyoungcy/tradereward/internal/features"
)

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const quotesCSV = `exchange,symbol,timestamp,local_timestamp,asks[0].price,asks[0].amount,bids[0].price,bids[0].amount
binance-futures,BTCUSDT,1580515200100000,1580515200101000,9351.5,1.2,9351.0,0.5
binance-futures,BTCUSDT,1580515200900000,1580515200901000,9352.5,1.0,9351.5,0.7
binance-futures,BTCUSDT,1580515203200000,1580515203201000,9353.0,2.0,9352.0,0.1
`

const tradesCSV = `exchange,symbol,timestamp,local_timestamp,id,side,price,amount
binance-futures,BTCUSDT,1580515200200000,1580515200201000,1,buy,9351.5,0.100
binance-futures,BTCUSDT,1580515200700000,1580515200701000,2,sell,9350.0,0.200
binance-futures,BTCUSDT,1580515200800000,1580515200801000,3,buy,9352.0,0.300
binance-futures,BTCUSDT,1580515202500000,1580515202501000,4,sell,9349.0,0.010
`

func TestReadQuotes(t *testing.T) {
	quotes, err := ReadQuotes(bytes.NewReader(gz(t, quotesCSV)), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != 3 {
		t.Fatalf("quotes = %d, want 3", len(quotes))
	}
	q := quotes[0]
	if q.AskPrice != 9351.5 || q.BidPrice != 9351.0 || q.AskAmount != 1.2 || q.BidAmount != 0.5 {
		t.Fatalf("quote = %+v", q)
	}
	if !q.Timestamp.Equal(time.UnixMicro(1580515200100000)) {
		t.Fatalf("timestamp = %v", q.Timestamp)
	}

	limited, err := ReadQuotes(bytes.NewReader(gz(t, quotesCSV)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Fatalf("nrows: got %d, want 2", len(limited))
	}
}

func TestReadQuotesMissingColumn(t *testing.T) {
	_, err := ReadQuotes(bytes.NewReader(gz(t, "timestamp,asks[0].price\n1,2\n")), 0)
	if err == nil || !strings.Contains(err.Error(), "missing column") {
		t.Fatalf("err = %v", err)
	}
}

func TestReadTrades(t *testing.T) {
	trades, err := ReadTrades(bytes.NewReader(gz(t, tradesCSV)), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 4 {
		t.Fatalf("trades = %d, want 4", len(trades))
	}
	if trades[1].Side != domain.SideSell || trades[1].Price != 9350 || !trades[1].Amount.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("trade = %+v", trades[1])
	}
}

func loadFixture(t *testing.T) *TimeBasedFeed {
	t.Helper()
	quotes, err := ReadQuotes(bytes.NewReader(gz(t, quotesCSV)), 0)
	if err != nil {
		t.Fatal(err)
	}
	trades, err := ReadTrades(bytes.NewReader(gz(t, tradesCSV)), 0)
	if err != nil {
		t.Fatal(err)
	}
	mid := make([]float64, len(quotes))
	for i, q := range quotes {
		mid[i] = q.Mid()
	}
	f, err := NewTimeBasedFeed(quotes, trades, features.Extract(mid, features.DefaultParams()), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestTimeBasedFeedPrices(t *testing.T) {
	f := loadFixture(t)
	// Buckets 0s..3s; 1s and 2s are empty and carry the last mid.
	want := []float64{9352.0, 9352.0, 9352.0, 9352.5}
	got := f.Prices()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mid[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if !f.Time(3).Equal(time.UnixMicro(1580515203000000)) {
		t.Fatalf("time(3) = %v", f.Time(3))
	}
}

func TestTimeBasedFeedFeatures(t *testing.T) {
	f := loadFixture(t)
	rows := f.Features()
	// The first bucket keeps the last non-NaN log return (second quote).
	if want := math.Log(9352.0 / 9351.25); math.Abs(rows[0].LR-want) > 1e-12 {
		t.Fatalf("lr[0] = %v, want %v", rows[0].LR, want)
	}
	if rows[1] != rows[0] || rows[2] != rows[0] {
		t.Fatalf("empty buckets not forward filled: %+v", rows)
	}
}

func TestTimeBasedFeedCandles(t *testing.T) {
	f := loadFixture(t)
	c := f.Candles()
	if len(c) != 3 {
		t.Fatalf("candles = %d, want 3", len(c))
	}
	if c[0].Open != 9351.5 || c[0].High != 9352 || c[0].Low != 9350 || c[0].Close != 9352 {
		t.Fatalf("candle 0 = %+v", c[0])
	}
	if c[0].Volume != 0.6 {
		t.Fatalf("volume = %v, want exact 0.6", c[0].Volume)
	}
	if c[1].Open != 9352 || c[1].Close != 9352 || c[1].Volume != 0 {
		t.Fatalf("empty candle = %+v", c[1])
	}
	if c[2].Close != 9349 {
		t.Fatalf("candle 2 = %+v", c[2])
	}
}

// Exchange timestamps in tardis files are not monotonic: rows are ordered by
// receive time. Buckets must cover the whole timestamp range.
func TestTimeBasedFeedUnorderedTimestamps(t *testing.T) {
	t0 := time.Unix(1580515200, 0).UTC()
	quotes := []domain.Quote{
		{Timestamp: t0.Add(2 * time.Second), AskPrice: 11, BidPrice: 9},
		{Timestamp: t0, AskPrice: 21, BidPrice: 19},
		{Timestamp: t0.Add(time.Second), AskPrice: 31, BidPrice: 29},
	}
	trades := []domain.TradeTick{
		{Timestamp: t0.Add(1500 * time.Millisecond), Side: domain.SideBuy, Price: 100, Amount: decimal.RequireFromString("0.1")},
		{Timestamp: t0.Add(3500 * time.Millisecond), Side: domain.SideSell, Price: 101, Amount: decimal.RequireFromString("0.2")},
		{Timestamp: t0.Add(1600 * time.Millisecond), Side: domain.SideBuy, Price: 102, Amount: decimal.RequireFromString("0.3")},
	}
	f, err := NewTimeBasedFeed(quotes, trades, make([]features.Row, len(quotes)), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if want := []float64{20, 30, 10}; !slices.Equal(f.Prices(), want) {
		t.Fatalf("mid = %v, want %v", f.Prices(), want)
	}
	if !f.Time(0).Equal(t0) {
		t.Fatalf("time(0) = %v, want %v", f.Time(0), t0)
	}

	c := f.Candles()
	if len(c) != 3 {
		t.Fatalf("candles = %d, want 3", len(c))
	}
	if c[0].Open != 100 || c[0].High != 102 || c[0].Low != 100 || c[0].Close != 102 || c[0].Volume != 0.4 {
		t.Fatalf("candle 0 = %+v", c[0])
	}
	if c[1].Close != 102 || c[1].Volume != 0 {
		t.Fatalf("empty candle = %+v", c[1])
	}
	if c[2].Close != 101 || !c[2].Date.Equal(t0.Add(3*time.Second)) {
		t.Fatalf("candle 2 = %+v", c[2])
	}
}

func TestNewTimeBasedFeedErrors(t *testing.T) {
	if _, err := NewTimeBasedFeed(nil, nil, nil, time.Second); err != ErrEmptyFeed {
		t.Fatalf("err = %v, want ErrEmptyFeed", err)
	}
	q := []domain.Quote{{Timestamp: time.Unix(0, 0), AskPrice: 2, BidPrice: 1}}
	if _, err := NewTimeBasedFeed(q, nil, []features.Row{{}}, 0); err == nil {
		t.Fatal("expected interval error")
	}
	if _, err := NewTimeBasedFeed(q, nil, nil, time.Second); err == nil {
		t.Fatal("expected row count error")
	}
}

func TestRandomWalkDeterministic(t *testing.T) {
	w := RandomWalk{Start: time.Unix(0, 0).UTC(), Price: 100, Vol: 0.001, Spread: 0.5, Tick: 100 * time.Millisecond, Seed: 7}
	q1, t1 := w.Generate(50)
	q2, _ := w.Generate(50)
	if len(q1) != 50 || len(t1) != 50 {
		t.Fatalf("lengths %d %d", len(q1), len(t1))
	}
	for i := range q1 {
		if q1[i] != q2[i] {
			t.Fatalf("quote %d differs across runs", i)
		}
		if q1[i].Spread() != 0.5 {
			t.Fatalf("spread = %v", q1[i].Spread())
		}
	}
}

type memBlob struct {
	objects map[string][]byte
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	m.objects[path] = b
	return err
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlob) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}


func (m *memBlob) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func TestFetcherDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	blob := &memBlob{objects: map[string][]byte{}}
	dir := t.TempDir()
	f := NewFetcher(dir, slog.Default(), WithBlobCache(blob, blob, "datasets"))

	for i := 0; i < 2; i++ {
		p, err := f.Fetch(context.Background(), srv.URL, "quotes.csv.gz")
		if err != nil {
			t.Fatal(err)
		}
		if p != filepath.Join(dir, "quotes.csv.gz") {
			t.Fatalf("path = %s", p)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("downloads = %d, want 1", hits.Load())
	}
	if string(blob.objects["datasets/quotes.csv.gz"]) != "payload" {
		t.Fatalf("blob cache = %q", blob.objects)
	}
}

func TestFetcherRestoresFromBlob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected download")
	}))
	defer srv.Close()

	blob := &memBlob{objects: map[string][]byte{"datasets/trades.csv.gz": []byte("cached")}}
	f := NewFetcher(t.TempDir(), slog.Default(), WithBlobCache(blob, nil, "datasets"))
	p, err := f.Fetch(context.Background(), srv.URL, "trades.csv.gz")
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "cached" {
		t.Fatalf("content = %q", b)
	}
}

func TestFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewFetcher(dir, slog.Default())
	if _, err := f.Fetch(context.Background(), srv.URL, "x.csv.gz"); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("left files behind: %v", entries)
	}
}

func TestLoad(t *testing.T) {
	files := map[string]string{"/quotes": quotesCSV, "/trades": tradesCSV}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gz(t, files[r.URL.Path]))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), slog.Default())
	tf, err := Load(context.Background(), f, Source{
		QuotesURL: srv.URL + "/quotes",
		TradesURL: srv.URL + "/trades",
		Interval:  time.Second,
		Features:  features.DefaultParams(),
	}, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if tf.Len() != 4 || len(tf.Candles()) != 3 {
		t.Fatalf("len=%d candles=%d", tf.Len(), len(tf.Candles()))
	}
}

func TestCacheName(t *testing.T) {
	tests := map[string]string{
		DefaultTradesURL: "binance-futures_trades_2020_02_01_BTCUSDT.csv.gz",
		DefaultQuotesURL: "binance-futures_book_snapshot_25_2020_02_01_BTCUSDT.csv.gz",
		"http://127.0.0.1:9000/quotes": "quotes",
	}
	for in, want := range tests {
		if got := CacheName(in); got != want {
			t.Errorf("CacheName(%q) = %q, want %q", in, got, want)
		}
	}
}
