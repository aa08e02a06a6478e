package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/firefly-engineering/shellcore/internal/logging"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 200 * time.Millisecond

// ReloadFunc receives every successfully reloaded configuration.
type ReloadFunc func(*Config)

// Watcher reloads a configuration file when it changes.
type Watcher struct {
	path     string
	onReload ReloadFunc
	debounce time.Duration

	watcher  *fsnotify.Watcher
	reload   chan struct{}
	stopOnce sync.Once
	stop     chan struct{}
}

// NewWatcher creates a watcher for path calling onReload after each change.
func NewWatcher(path string, onReload ReloadFunc) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		path:     absPath,
		onReload: onReload,
		debounce: DefaultDebounce,
		watcher:  fw,
		reload:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the debounce delay. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching. Editors replace files on save, so the directory
// is watched rather than the file.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}
	logging.Debug("watching config", "path", w.path)

	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop ends watching.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.trigger()
			} else if event.Has(fsnotify.Remove) {
				logging.Warn("config file removed", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) trigger() {
	select {
	case w.reload <- struct{}{}:
	default:
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-w.reload:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.apply)
		}
	}
}

func (w *Watcher) apply() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	logging.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}
