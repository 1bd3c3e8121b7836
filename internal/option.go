package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/lattice/internal/autosave"
	"github.com/starford/lattice/internal/linkgraph"
	"github.com/starford/lattice/internal/markdown"
	"github.com/starford/lattice/internal/noteservice"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/workspace"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logOutput io.Writer
	logger    *slog.Logger
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogOutput redirects the JSON log. The MCP command logs to stderr
// because stdout carries the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(app.logger)
	return app, nil
}

// stack is the storage, service and workspace built from the config.
type stack struct {
	store storage.Provider
	svc   *noteservice.Service
	ws    *workspace.Workspace
}

func (a *application) open(ctx context.Context) (*stack, error) {
	cfg := a.config

	store, err := storage.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	links := linkgraph.New(
		linkgraph.WithLocale(cfg.Links.Tag()),
		linkgraph.WithExcerptRadius(cfg.Links.ExcerptRadius),
	)
	svc := noteservice.NewService(store,
		noteservice.WithLinkEngine(links),
		noteservice.WithDetector(markdown.NewDetector(cfg.Markdown.DetectThreshold)),
		noteservice.WithLogger(a.logger),
	)
	ws, err := workspace.Open(ctx, svc,
		workspace.WithLinkEngine(links),
		workspace.WithLogger(a.logger),
		workspace.WithAutosave(
			autosave.WithDelay(cfg.Autosave.Debounce),
			autosave.WithTimeout(cfg.Autosave.FlushTimeout),
		),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	return &stack{store: store, svc: svc, ws: ws}, nil
}

// close flushes unsaved drafts and closes the store.
func (s *stack) close(timeout func() (context.Context, context.CancelFunc)) error {
	ctx, cancel := timeout()
	defer cancel()
	werr := s.ws.Close(ctx)
	if err := s.store.Close(); err != nil {
		return err
	}
	return werr
}
