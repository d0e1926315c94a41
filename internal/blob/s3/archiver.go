package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// TradeArchiveStore is the slice of domain.TradeStore the archiver needs.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver: it copies simulated trades older
// than a cutoff to JSONL in object storage, then removes them from the
// database. Nothing is deleted unless the upload succeeded.
type ArchiveImpl struct {
	writer domain.BlobWriter
	trades TradeArchiveStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, audit domain.AuditStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		trades: trades,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads every trade stored before the cutoff to
// archive/sim_trades/YYYY-MM/<cutoff>.jsonl and deletes them.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}
	path := archivePath("sim_trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades delete: %w", err)
	}
	if deleted != int64(len(trades)) {
		a.logger.Warn("archiver: deleted count differs from archived",
			slog.Int("archived", len(trades)),
			slog.Int64("deleted", deleted),
		)
	}

	count := int64(len(trades))
	if err := a.audit.Log(ctx, "archive.sim_trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		a.logger.Warn("archiver: audit log failed", slog.String("error", err.Error()))
	}
	a.logger.Info("archiver: trades archived", slog.String("path", path), slog.Int64("count", count))
	return count, nil
}

// archivePath partitions archives by the cutoff month:
//
//	archive/sim_trades/2026-10/20261015T000000Z.jsonl
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), before.Format("20060102T150405Z"))
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
