package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ImportedSuffix is appended to a backup file once it has been imported.
const ImportedSuffix = ".imported"

// settle is how long a file must stay quiet before it is read, so a
// backup still being written is not picked up half way.
const settle = 200 * time.Millisecond

// ImportFunc receives a validated backup found in the watched directory.
type ImportFunc func(ctx context.Context, doc *Document) error

// Watch imports every *.json backup dropped into dir until ctx is
// cancelled. Files present at start are imported too. A successfully
// imported file is renamed with ImportedSuffix; a file that fails to
// decode or import is left in place and logged.
func Watch(ctx context.Context, dir string, logger *slog.Logger, fn ImportFunc) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("backup watcher: started", slog.String("dir", dir))

	// pending maps a file to the time it last changed.
	pending := make(map[string]time.Time)
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && isBackup(e.Name()) {
				pending[filepath.Join(dir, e.Name())] = time.Time{}
			}
		}
	}

	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("backup watcher: stopped")
			return nil

		case <-ticker.C:
			now := time.Now()
			for path, changed := range pending {
				if now.Sub(changed) < settle {
					continue
				}
				delete(pending, path)
				importFile(ctx, path, logger, fn)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isBackup(filepath.Base(ev.Name)) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[ev.Name] = time.Now()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("backup watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func importFile(ctx context.Context, path string, logger *slog.Logger, fn ImportFunc) {
	doc, err := ReadFile(path)
	if err != nil {
		logger.Warn("backup watcher: unreadable backup", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := fn(ctx, doc); err != nil {
		logger.Warn("backup watcher: import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if err := os.Rename(path, path+ImportedSuffix); err != nil {
		logger.Warn("backup watcher: mark imported failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	logger.Info("backup watcher: imported", slog.String("path", path), slog.Int("notes", len(doc.Notes)))
}

// isBackup matches visible *.json files; temp files start with a dot.
func isBackup(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}
