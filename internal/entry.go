// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lattice/internal/api"
	"github.com/starford/lattice/internal/backup"
	"github.com/starford/lattice/internal/sse"
	"github.com/starford/lattice/internal/storage"
	"github.com/starford/lattice/internal/workspace"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("backup_dir", cfg.Backup.Dir),
		slog.String("import_dir", cfg.Backup.ImportDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	st, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(app.flushTimeout); err != nil {
			logger.Error("shutdown flush failed", slog.String("error", err.Error()))
		}
	}()

	// SSE broker fed by workspace events.
	broker := sse.NewBroker(cfg.Events.GraphThrottle)
	defer broker.Close()
	unsubscribe := st.ws.Subscribe(broker.Notify)
	defer unsubscribe()

	apiRouter := api.NewRouter(st.ws, st.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := st.store.GetNotes(r.Context(), storage.Query{Limit: 1}); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the import directory for dropped backups.
	if cfg.Backup.ImportDir != "" {
		g.Go(func() error {
			return backup.Watch(gCtx, cfg.Backup.ImportDir, logger, importInto(st.ws))
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Streams never end on their own; close them before draining.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown ends the group so the import watcher stops with the server.
var errShutdown = errors.New("shutdown")

func (a *application) flushTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*a.config.Autosave.FlushTimeout)
}

func importInto(ws *workspace.Workspace) backup.ImportFunc {
	return func(ctx context.Context, doc *backup.Document) error {
		_, err := ws.Import(ctx, doc.ToNotes())
		return err
	}
}
