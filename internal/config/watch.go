package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors and secret mounts
// produce for a single save.
var reloadDebounce = 250 * time.Millisecond

// WatchPlatformsConfig reloads the credentials file at path after every
// change and hands each valid result to apply. A file that fails to load or
// an apply error is logged and the previous credentials stay in use. It
// blocks until ctx is cancelled.
func WatchPlatformsConfig(ctx context.Context, path string, logger *slog.Logger, apply func(*PlatformsConfig) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create platforms config watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// Watch the directory: atomic saves replace the file and drop a
	// watch placed on the file itself.
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("watching platforms config", slog.String("path", path))

	reload := time.NewTimer(reloadDebounce)
	reload.Stop()
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				reload.Reset(reloadDebounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("platforms config watch error", slog.Any("error", err))

		case <-reload.C:
			cfg, err := LoadPlatformsConfig(path)
			if err == nil {
				err = apply(cfg)
			}
			if err != nil {
				logger.Warn("platforms config reload rejected, keeping current credentials",
					slog.String("path", path),
					slog.Any("error", err))
				continue
			}
			logger.Info("platform credentials reloaded", slog.String("path", path))
		}
	}
}
