package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/jobwatch/constants"
)

type WatchConfig struct {
	Roots       []string            // directories to watch (recursive)
	AllowedExts map[string]struct{} // lowercase, without '.'; nil -> PDF only
	InitialScan bool                // if true, walk roots and emit existing files
	SkipHidden  bool
	Debounce    time.Duration // coalesce rapid create/write/rename bursts
	Logger      *slog.Logger
}

// StartWatcher watches cfg.Roots recursively and emits the paths of matching
// files once they have been quiet for cfg.Debounce. Both channels are closed
// when ctx ends.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("ingest.watcher.no_roots")
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = constants.AllowedExtensions[constants.JobKindProcessPDF]
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("ingest.watcher.create_failed", "error", err)
		return nil, nil, err
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if cfg.SkipHidden && path != root && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && allowed(path, cfg.AllowedExts) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("ingest.watcher.add_root_failed", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}
	logger.Info("ingest.watcher.started", "roots", cfg.Roots, "initial_files", len(initial))

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("ingest.watcher.close_failed", "error", err)
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		pending := map[string]struct{}{}
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()

		flush := func() bool {
			for p := range pending {
				delete(pending, p)
				if _, err := os.Stat(p); err != nil {
					// renamed away or removed before it settled
					continue
				}
				if !emit(p) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					addIfDir(w, e.Name, cfg.SkipHidden, logger)
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				if !allowed(e.Name, cfg.AllowedExts) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce <= 0 {
					if !flush() {
						return
					}
					continue
				}
				timer.Reset(cfg.Debounce)
			case <-timer.C:
				if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("ingest.watcher.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func allowed(path string, exts map[string]struct{}) bool {
	_, ok := exts[constants.NormalizeExt(filepath.Ext(path))]
	return ok
}

// addIfDir starts watching a newly created directory.
func addIfDir(w *fsnotify.Watcher, path string, skipHidden bool, logger *slog.Logger) {
	st, err := os.Stat(path)
	if err != nil || !st.IsDir() {
		return
	}
	if skipHidden && IsHidden(path) {
		return
	}
	if err := w.Add(path); err != nil {
		logger.Warn("ingest.watcher.add_dir_failed", "path", path, "error", err)
	}
}
