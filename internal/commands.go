package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/lattice/internal/backup"
	"github.com/starford/lattice/internal/mcpserver"
)

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	st, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(app.flushTimeout); err != nil {
			app.logger.Error("shutdown flush failed", slog.String("error", err.Error()))
		}
	}()

	app.logger.Info("MCP server starting", slog.String("sqlite_path", app.config.SQLite.Path))
	return mcpserver.New(st.ws, st.svc).ServeStdio()
}

// Export writes every note to a backup file and returns its path. An empty
// out writes a timestamped file into the configured backup directory.
func Export(ctx context.Context, out string, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	st, err := app.open(ctx)
	if err != nil {
		return "", err
	}
	defer st.close(app.flushTimeout) //nolint:errcheck

	now := time.Now()
	if out == "" {
		out = filepath.Join(app.config.Backup.Dir, backup.FileName(now))
	}
	doc := backup.Encode(st.ws.Notes(), now)
	if err := backup.WriteFile(out, doc); err != nil {
		return "", err
	}
	app.logger.Info("backup exported", slog.String("path", out), slog.Int("notes", len(doc.Notes)))
	return out, nil
}

// Import replaces every note with the contents of the backup at in and
// returns the number of notes loaded.
func Import(ctx context.Context, in string, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	doc, err := backup.ReadFile(in)
	if err != nil {
		return 0, err
	}
	st, err := app.open(ctx)
	if err != nil {
		return 0, err
	}
	defer st.close(app.flushTimeout) //nolint:errcheck

	if err := importInto(st.ws)(ctx, doc); err != nil {
		return 0, fmt.Errorf("import %s: %w", in, err)
	}
	n := len(st.ws.Notes())
	app.logger.Info("backup imported", slog.String("path", in), slog.Int("notes", n))
	return n, nil
}
