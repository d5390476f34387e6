package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"underwriting/internal/rule"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last file event of a
// category before subscribers are notified.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reports edits made to the files of a FileBackend by other
// processes or by hand, so caches built on the store can be dropped.
type Watcher struct {
	backend  *FileBackend
	store    *Store
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[rule.Category]*time.Timer
}

// NewWatcher creates a watcher of backend notifying through store.
func NewWatcher(backend *FileBackend, store *Store, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		backend:  backend,
		store:    store,
		debounce: debounce,
		logger:   logger.With("component", "store.watcher"),
		timers:   make(map[rule.Category]*time.Timer),
	}
}

// Watch blocks until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.backend.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.backend.Dir(), err)
	}
	w.logger.Info("File watcher started", "path", w.backend.Dir(), "debounce_ms", w.debounce.Milliseconds())

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("File watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			category, ok := w.backend.CategoryOf(event.Name)
			if !ok {
				continue
			}
			w.logger.Debug("File event detected", "path", event.Name, "op", event.Op.String())
			w.schedule(ctx, category)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, category rule.Category) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[category]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[category] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, category)
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.store.NotifyExternal(ctx, category)
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for category, t := range w.timers {
		t.Stop()
		delete(w.timers, category)
	}
}
