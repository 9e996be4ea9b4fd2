package ingest

import (
	"context"
	"time"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	Deduplicated bool
	HashHex      string
	FileExt      string
	QueuedAt     time.Time
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor turns files on disk into queued jobs.
type Ingestor interface {
	// IngestPath queues a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory queues all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}
