package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the guardrail config into a Holder when its file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	holder   *Holder
	path     string
	debounce time.Duration
	logger   *zap.Logger
	reloaded chan struct{}
}

// NewWatcher creates a file watcher for the config at path.
func NewWatcher(holder *Holder, path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %q not watchable: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	return &Watcher{
		watcher:  watcher,
		holder:   holder,
		path:     path,
		debounce: reloadDebounce,
		logger:   logger,
		reloaded: make(chan struct{}, 1),
	}, nil
}

// Reloaded signals after each successful reload.
func (w *Watcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Run watches for file changes and reloads the config. Blocks until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, hash, err := LoadConfigWithHash(w.path)
	if err != nil {
		w.logger.Error("config hot-reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.holder.Store(cfg, hash)
	w.logger.Info("config reloaded", zap.String("path", w.path), zap.String("hash", hash))
	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}
