package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long the file must stay quiet before it is re-read.
// Editors often write a file in several steps.
const settleDelay = 150 * time.Millisecond

// Watch calls onChange with the freshly loaded config each time the file at
// path changes content and still validates. Invalid edits are logged and
// skipped. Watch blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file so that editors that
// replace the file by rename are picked up.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	var lastHash [sha256.Size]byte
	if data, err := os.ReadFile(path); err == nil {
		lastHash = sha256.Sum256(data)
	}

	reload := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("reading changed config", "path", path, "error", err)
			}
			return
		}
		sum := sha256.Sum256(data)
		if bytes.Equal(sum[:], lastHash[:]) {
			return
		}
		lastHash = sum

		cfg, err := Parse(data)
		if err != nil {
			logger.Warn("ignoring invalid config change", "path", path, "error", err)
			return
		}
		logger.Info("config reloaded", "path", path)
		onChange(cfg)
	}

	timer := time.NewTimer(settleDelay)
	timer.Stop()
	defer timer.Stop()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(settleDelay)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", watchErr)
		case <-timer.C:
			reload()
		}
	}
}
