package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const settleInterval = 100 * time.Millisecond

// Watcher reloads settings whenever the file changes on disk. A file that
// cannot be read or parsed is skipped, so onChange only ever sees settings
// that were actually written.
type Watcher struct {
	store    *Store
	onChange func(*Settings)
	watcher  *fsnotify.Watcher
}

// NewWatcher watches the directory holding the settings file, since
// atomic saves replace the file instead of writing to it.
func NewWatcher(store *Store, onChange func(*Settings)) (*Watcher, error) {
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		store:    store,
		onChange: onChange,
		watcher:  fsw,
	}, nil
}

// Run processes events until ctx is done. Bursts of events are folded
// into one reload once the file settles.
func (w *Watcher) Run(ctx context.Context) *sync.WaitGroup {
	settle := time.NewTimer(settleInterval)
	settle.Stop()
	wg := &sync.WaitGroup{}
	target := filepath.Clean(w.store.Path())

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer settle.Stop()
		defer w.watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					settle.Reset(settleInterval)
				}

			case <-settle.C:
				// A half-written or broken file keeps the settings in use.
				cfg, err := w.store.Read()
				if err != nil {
					slog.Warn("Settings not reloaded", "error", err, slog.String("path", target))
					continue
				}
				slog.Info("settings reloaded", slog.String("path", target))
				w.onChange(cfg)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Settings watcher error", "error", err)
			}
		}
	}()

	return wg
}
