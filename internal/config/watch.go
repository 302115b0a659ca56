package config

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	mu      sync.RWMutex
	current *Config
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:   path,
		logger: logger,
	}, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Load loads the configuration from the file.
func (w *Watcher) Load() (*Config, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, err := LoadFile(w.path)
	if err != nil {
		return nil, err
	}

	w.current = cfg
	w.logger.Info("config loaded", slog.String("path", w.path))

	return cfg, nil
}

// Watch watches the config file and calls onChange with each successfully
// reloaded config. A reload that fails validation keeps the previous config
// and logs the error.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	w.logger.Info("watching config file for changes", slog.String("path", w.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				w.logger.Debug("config watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Op&fsnotify.Write == fsnotify.Write {
					w.logger.Info("config file changed, reloading", slog.String("path", event.Name))

					cfg, err := LoadFile(w.path)
					if err != nil {
						w.logger.Error("failed to reload config",
							slog.String("error", err.Error()),
							slog.String("path", w.path))
						continue
					}

					w.mu.Lock()
					w.current = cfg
					w.mu.Unlock()

					onChange(cfg)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the config file.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watcher != nil {
		return w.watcher.Close()
	}

	return nil
}
