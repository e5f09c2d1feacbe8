package providers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"cyris/internal/utils"
)

const defaultReloadDebounce = 250 * time.Millisecond

// RegistryWatcher reloads a ModelRegistry whenever its TOML file changes.
// The parent directory is watched so editors that replace the file on save
// are picked up too.
type RegistryWatcher struct {
	registry *ModelRegistry
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *utils.Logger

	// reloaded is signalled after every reload attempt, used by tests
	reloaded chan error
}

// NewRegistryWatcher creates a watcher for path. Call Run to start it.
func NewRegistryWatcher(registry *ModelRegistry, path string) (*RegistryWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving models file: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &RegistryWatcher{
		registry: registry,
		path:     abs,
		watcher:  w,
		debounce: defaultReloadDebounce,
		logger:   utils.NewLogger("registry-watcher"),
		reloaded: make(chan error, 1),
	}, nil
}

// Run processes file events until ctx is cancelled.
func (rw *RegistryWatcher) Run(ctx context.Context) {
	defer rw.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != rw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(rw.debounce)
			} else {
				timer.Reset(rw.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			err := rw.registry.LoadFile(rw.path)
			if err != nil {
				rw.logger.Error("Failed to reload models file", "path", rw.path, "error", err)
			} else {
				rw.logger.Info("Reloaded models file", "path", rw.path, "models", len(rw.registry.All()))
			}
			select {
			case rw.reloaded <- err:
			default:
			}

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			rw.logger.Warn("File watcher error", "error", err)
		}
	}
}
