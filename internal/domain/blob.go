package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter stores dataset downloads, episode reports and trade archives.
// partSize <= 0 lets the implementation choose.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader is the read side used by the dataset cache.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves simulated trades created before a cutoff out of the
// database and reports how many it moved.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
}
