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

	"github.com/joseph-ayodele/docextract/constants"
)

type WatchConfig struct {
	Roots       []string            // directories to watch (recursive)
	AllowedExts map[string]struct{} // nil = constants.AllowedExtensions
	InitialScan bool                // if true, walk roots and emit existing files
	Debounce    time.Duration       // coalesce rapid create/write bursts
	Workers     int                 // documents processed at once; default 1
	JobTimeout  time.Duration       // per document; 0 = queue default
}

// StartWatcher emits paths of settled, allowed, non-hidden files under the
// roots. Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.AllowedExts == nil {
		cfg.AllowedExts = constants.AllowedExtensions
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("watch.create_failed", "error", err)
		return nil, nil, err
	}

	// addTree watches every non-hidden directory under root and reports
	// each allowed file already inside it.
	addTree := func(root string, onFile func(string)) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if allowed(path, cfg.AllowedExts) {
				onFile(path)
			}
			return nil
		})
	}

	var initial []string
	addDir := func(root string) error {
		return addTree(root, func(p string) {
			if cfg.InitialScan {
				initial = append(initial, p)
			}
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			logger.Error("watch.add_root_failed", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watch.close_failed", "error", err)
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

		flush := func() bool {
			for p := range pending {
				delete(pending, p)
				if _, err := os.Stat(p); err != nil {
					continue // removed or renamed away before settling
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
				if isHidden(e.Name) {
					continue
				}
				if e.Has(fsnotify.Create) {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						// a directory moved or copied in may already hold files
						found := 0
						err := addTree(e.Name, func(p string) {
							pending[p] = struct{}{}
							found++
						})
						if err != nil {
							logger.Warn("watch.add_dir_failed", "path", e.Name, "error", err)
						}
						if found == 0 {
							continue
						}
						logger.Debug("watch.dir_added", "path", e.Name, "files", found)
					} else if !allowed(e.Name, cfg.AllowedExts) {
						continue
					} else {
						pending[e.Name] = struct{}{}
					}
				} else {
					if !allowed(e.Name, cfg.AllowedExts) || !e.Has(fsnotify.Write) {
						continue
					}
					pending[e.Name] = struct{}{}
				}
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
				logger.Error("watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// Watch processes every file the watcher emits until ctx is done. Up to
// cfg.Workers documents run at once; onResult may be called concurrently.
func Watch(ctx context.Context, cfg WatchConfig, proc DocumentProcessor, logger *slog.Logger, onResult func(FileResult)) error {
	if logger == nil {
		logger = slog.Default()
	}
	events, errs, err := StartWatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}

	q := NewProcessorQueue(ctx, proc, logger,
		WithWorkers(cfg.Workers),
		WithProcessTimeout(cfg.JobTimeout),
		WithResultHandler(onResult),
	)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		q.Shutdown(sctx)
	}()

	logger.Info("watch.start", "roots", cfg.Roots, "debounce", cfg.Debounce, "workers", cfg.Workers)
	for {
		select {
		case <-ctx.Done():
			logger.Info("watch.stop")
			return nil
		case p, ok := <-events:
			if !ok {
				return nil
			}
			if err := q.Enqueue(ctx, Job{Path: p}); err != nil && ctx.Err() == nil {
				logger.Error("watch.enqueue_failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch.degraded", "error", err)
		}
	}
}
