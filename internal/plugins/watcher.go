package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"media-vault/internal/logging"
	"media-vault/internal/metrics"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads plugins when their script files change. It watches the
// parent directories so that editors that replace files atomically and
// scripts that are deleted and recreated are both noticed.
type Watcher struct {
	registry *Registry
	fsw      *fsnotify.Watcher
	paths    map[string][]string

	mu       sync.Mutex
	debounce map[string]*time.Timer
}

// NewWatcher creates a watcher for every plugin with a script path.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		registry: registry,
		fsw:      fsw,
		paths:    registry.watchedPaths(),
		debounce: make(map[string]*time.Timer),
	}

	dirs := make(map[string]bool)
	for p := range w.paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			logging.Warn("Cannot watch plugin directory %s: %v", dir, err)
			continue
		}
		logging.Debug("Watching plugin directory %s", dir)
	}
	return w, nil
}

func (w *Watcher) String() string { return "plugin-watcher" }

// Serve processes filesystem events until ctx is canceled.
func (w *Watcher) Serve(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			logging.Warn("failed to close plugin watcher: %v", err)
		}
		w.mu.Lock()
		for _, t := range w.debounce {
			t.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("Plugin watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	names, ok := w.paths[filepath.Clean(event.Name)]
	if !ok {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Editors emit bursts of events for a single save.
	if t, exists := w.debounce[event.Name]; exists {
		t.Stop()
	}
	w.debounce[event.Name] = time.AfterFunc(reloadDebounce, func() {
		for _, name := range names {
			w.registry.reload(name)
			metrics.PluginReloads.Inc()
		}
		w.mu.Lock()
		delete(w.debounce, event.Name)
		w.mu.Unlock()
	})
}
