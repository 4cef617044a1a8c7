package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watch emits a freshly loaded config each time the file at path changes.
// The parent directory is watched so editors that replace the file are seen.
// Invalid configs are logged and skipped. The channel closes when ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger) (<-chan *Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = ExpandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	out := make(chan *Config, 1)
	fire := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(out)

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})

			case <-fire:
				cfg, err := LoadFrom(path)
				if err != nil {
					logger.Warn("config reload failed", "path", path, "err", err)
					continue
				}
				// keep only the newest config
				select {
				case <-out:
				default:
				}
				out <- cfg

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug("config watcher error", "err", err)
			}
		}
	}()

	return out, nil
}
