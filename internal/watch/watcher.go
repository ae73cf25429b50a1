// Package watch re-runs a sweep whenever the note store changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/bearlinks/internal/apperr"
)

// DefaultDebounce is the quiet period after the last store write before a
// sweep starts.
const DefaultDebounce = 3 * time.Second

// RunFunc performs one sweep.
type RunFunc func(ctx context.Context) error

// Watch starts an fsnotify watcher on the directory holding storePath and
// calls run once the store file or its write-ahead log has been quiet for
// debounce. It returns nil when ctx is cancelled.
//
// A run failing with apperr.ErrStoreUnavailable (the host application
// holding a lock, for instance) is logged and watching continues; any other
// run error stops the watcher and is returned.
func Watch(ctx context.Context, storePath string, debounce time.Duration, logger *slog.Logger, run RunFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(storePath)
	if err != nil {
		return fmt.Errorf("watch: resolve store path: %w", err)
	}
	dir, base := filepath.Split(abs)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}

	logger.Info("watcher: started", slog.String("dir", dir), slog.String("store", base))

	relevant := map[string]struct{}{base: {}, base + "-wal": {}}

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			logger.Debug("watcher: store changed, running sweep")
			if err := run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !errors.Is(err, apperr.ErrStoreUnavailable) {
					return err
				}
				logger.Warn("watcher: sweep skipped", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ok := relevant[filepath.Base(ev.Name)]; !ok {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
