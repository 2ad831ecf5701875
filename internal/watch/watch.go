// Package watch observes the directories holding expected files and fires a
// callback when one of them lands, so the dashboard flips PENDING → OK
// without waiting for the next scheduled pass.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"etlwatch/internal/config"
)

// Watcher listens for the arrival of expected files.
type Watcher struct {
	expected map[string]bool
	dirs     []string
	onArrive func(path string)
	logger   *slog.Logger
}

// New collects the file-check paths from checks and prepares a watcher that
// calls onArrive when one of them is created or written. Returns nil (and
// no error) when there are no file checks to watch.
func New(checks []config.Check, onArrive func(path string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	expected := make(map[string]bool)
	seen := make(map[string]bool)
	var dirs []string
	for _, c := range checks {
		if c.Kind != config.KindFile {
			continue
		}
		abs := filepath.Clean(c.Path)
		expected[abs] = true
		dir := filepath.Dir(abs)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if len(expected) == 0 {
		return nil
	}

	return &Watcher{
		expected: expected,
		dirs:     dirs,
		onArrive: onArrive,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, invoking the callback for each
// expected-file arrival. A directory that cannot be watched is logged and
// skipped; the scheduled passes still cover it.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	watching := 0
	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", "dir", dir, "error", err)
			continue
		}
		watching++
	}
	if watching == 0 {
		return fmt.Errorf("no watchable directories")
	}
	w.logger.Info("watching for expected files", "dirs", watching, "files", len(w.expected))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if w.expected[filepath.Clean(event.Name)] {
				w.logger.Info("expected file arrived", "path", event.Name)
				w.onArrive(event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}
