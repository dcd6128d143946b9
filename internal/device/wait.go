package device

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitFor blocks until path exists or ctx is done. It watches the parent
// directory for creations and also polls every interval, since udev may
// create the node through a symlink in a directory that does not exist yet
// (/dev/input/by-id). Watcher errors go to logger, which may be nil; the
// poll ticker keeps the wait going if the watcher stops delivering.
func WaitFor(ctx context.Context, path string, interval time.Duration, logger *slog.Logger) error {
	if exists(path) {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events = watcher.Events
			errs = watcher.Errors
		} else {
			logger.Debug("cannot watch device directory", "dir", filepath.Dir(path), "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// The watch may have been added after the node appeared.
		if exists(path) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("device watcher error", "error", err)
		case <-ticker.C:
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
