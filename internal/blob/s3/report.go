package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/alanyoungcy/tradereward/internal/domain"
)

// ReportWriter uploads per-episode step reports as JSONL. The first line is
// the episode summary, every following line one step.
type ReportWriter struct {
	writer domain.BlobWriter
	prefix string
}

// NewReportWriter stores reports under prefix.
func NewReportWriter(writer domain.BlobWriter, prefix string) *ReportWriter {
	return &ReportWriter{writer: writer, prefix: prefix}
}

// ReportPath is where the report of ep is stored.
func (r *ReportWriter) ReportPath(ep domain.Episode) string {
	return fmt.Sprintf("%s/%s/%04d-%s.jsonl", r.prefix, ep.RunID, ep.Index, ep.ID)
}

// WriteReport uploads the report and returns its path.
func (r *ReportWriter) WriteReport(ctx context.Context, ep domain.Episode, steps []domain.StepResult) (string, error) {
	head, err := marshalJSONL([]domain.Episode{ep})
	if err != nil {
		return "", fmt.Errorf("s3blob: report header: %w", err)
	}
	body, err := marshalJSONL(steps)
	if err != nil {
		return "", fmt.Errorf("s3blob: report steps: %w", err)
	}
	path := r.ReportPath(ep)
	if err := r.writer.Put(ctx, path, bytes.NewReader(append(head, body...)), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: upload report %s: %w", path, err)
	}
	return path, nil
}
