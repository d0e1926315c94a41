package feed

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// ReadQuotes parses a gzipped tardis book_snapshot_25 CSV and keeps the top
// of book of each snapshot. nrows <= 0 reads the whole file.
func ReadQuotes(r io.Reader, nrows int) ([]domain.Quote, error) {
	rows, idx, err := openCSV(r, "timestamp", "asks[0].price", "asks[0].amount", "bids[0].price", "bids[0].amount")
	if err != nil {
		return nil, fmt.Errorf("feed: quotes: %w", err)
	}

	var quotes []domain.Quote
	for line := 2; nrows <= 0 || len(quotes) < nrows; line++ {
		rec, err := rows.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: quotes line %d: %w", line, err)
		}

		var q domain.Quote
		var ts int64
		if ts, err = strconv.ParseInt(rec[idx[0]], 10, 64); err == nil {
			q.Timestamp = micros(ts)
			q.AskPrice, err = parseFloat(rec[idx[1]])
		}
		if err == nil {
			q.AskAmount, err = parseFloat(rec[idx[2]])
		}
		if err == nil {
			q.BidPrice, err = parseFloat(rec[idx[3]])
		}
		if err == nil {
			q.BidAmount, err = parseFloat(rec[idx[4]])
		}
		if err != nil {
			return nil, fmt.Errorf("feed: quotes line %d: %w", line, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// ReadTrades parses a gzipped tardis trades CSV. nrows <= 0 reads the whole
// file.
func ReadTrades(r io.Reader, nrows int) ([]domain.TradeTick, error) {
	rows, idx, err := openCSV(r, "timestamp", "id", "side", "price", "amount")
	if err != nil {
		return nil, fmt.Errorf("feed: trades: %w", err)
	}

	var ticks []domain.TradeTick
	for line := 2; nrows <= 0 || len(ticks) < nrows; line++ {
		rec, err := rows.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("feed: trades line %d: %w", line, err)
		}

		ts, err := strconv.ParseInt(rec[idx[0]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("feed: trades line %d: timestamp: %w", line, err)
		}
		price, err := parseFloat(rec[idx[3]])
		if err != nil {
			return nil, fmt.Errorf("feed: trades line %d: price: %w", line, err)
		}
		amount, err := decimal.NewFromString(rec[idx[4]])
		if err != nil {
			return nil, fmt.Errorf("feed: trades line %d: amount: %w", line, err)
		}
		ticks = append(ticks, domain.TradeTick{
			Timestamp: micros(ts),
			ID:        rec[idx[1]],
			Side:      domain.Side(rec[idx[2]]),
			Price:     price,
			Amount:    amount,
		})
	}
	return ticks, nil
}

// openCSV decompresses r, reads the header and returns the column index of
// each wanted name.
func openCSV(r io.Reader, columns ...string) (*csv.Reader, []int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("gzip: %w", err)
	}
	rows := csv.NewReader(gz)
	rows.ReuseRecord = true

	header, err := rows.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		j, ok := pos[c]
		if !ok {
			return nil, nil, fmt.Errorf("missing column %q", c)
		}
		idx[i] = j
	}
	return rows, idx, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func micros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
