package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/async"
	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

// FSIngestor reads PDFs from the local filesystem and queues a "processar"
// job for each new document. Files are deduplicated by content hash for the
// lifetime of the ingestor.
type FSIngestor struct {
	queue     async.Queue
	callbacks func(path string) poll.Callbacks
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]string // sha256 hex -> first path
}

func NewFSIngestor(queue async.Queue, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{queue: queue, logger: logger, seen: make(map[string]string)}
}

// WithCallbacks sets the callbacks attached to every queued job.
func (i *FSIngestor) WithCallbacks(fn func(path string) poll.Callbacks) *FSIngestor {
	i.callbacks = fn
	return i
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !constants.Allowed(constants.JobKindProcessPDF, ext) {
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}
	out.FileExt = ext

	sum, err := hashFile(abs)
	if err != nil {
		return out, err
	}
	out.HashHex = sum

	i.mu.Lock()
	first, dup := i.seen[sum]
	if !dup {
		i.seen[sum] = abs
	}
	i.mu.Unlock()
	if dup {
		i.logger.Info("ingest.deduplicated", "path", abs, "first_path", first, "sha256", sum)
		out.Deduplicated = true
		return out, nil
	}

	job := async.Job{Input: core.PDFJob(abs), SubmittedAt: time.Now()}
	if i.callbacks != nil {
		job.Callbacks = i.callbacks(abs)
	}
	if err := i.queue.Enqueue(ctx, job); err != nil {
		// let a later event retry the file
		i.mu.Lock()
		delete(i.seen, sum)
		i.mu.Unlock()
		return out, fmt.Errorf("enqueue %s: %w", abs, err)
	}
	out.QueuedAt = job.SubmittedAt
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each PDF. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.Allowed(constants.JobKindProcessPDF, filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
