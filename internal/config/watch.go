package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watch reloads the config at path whenever it changes and passes the result
// to onChange. It blocks until the context is cancelled.
//
// The parent directory is watched rather than the file, so editors that
// replace the file by rename are still seen.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger := slog.With("component", "config")
	logger.Debug("watching config for changes", "path", path)

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			// A rename or remove moves the file away; keep the last config
			// until the replacement shows up as a create.
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				cfg, err := Load(path)
				if err != nil {
					logger.Error("config reload failed", "path", path, "error", err)
					return
				}
				logger.Info("config reloaded", "path", path)
				onChange(cfg)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}
