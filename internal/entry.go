// Package internal wires configuration, storage, the backlink resolver and
// the search index into the slipbox commands.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/slipbox/internal/api"
	"github.com/starford/slipbox/internal/backlinks"
	"github.com/starford/slipbox/internal/finder"
	"github.com/starford/slipbox/internal/index"
	"github.com/starford/slipbox/internal/mcpserver"
	"github.com/starford/slipbox/internal/noteservice"
	"github.com/starford/slipbox/internal/sse"
	"github.com/starford/slipbox/internal/storage"
)

const (
	graphThrottle   = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newApplication(opts []Option) (*application, error) {
	app := &application{
		out:     os.Stdout,
		logOut:  os.Stderr,
		version: "dev",
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := app.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return app, nil
}

func (a *application) logger() *slog.Logger {
	level := a.config.App.LogLevel
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{Level: level}))
}

// deps holds the components every command is built from.
type deps struct {
	store    *storage.FS
	resolver *backlinks.Resolver
	svc      *noteservice.Service
	db       *index.DB
}

func (d *deps) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// build constructs storage, the resolver and the note service. The search
// index is opened only when withIndex is set.
func (a *application) build(logger *slog.Logger, withIndex bool) (*deps, error) {
	cfg := a.config

	store, err := storage.NewFS(cfg.Notes.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	f, err := finder.New(cfg.Search.Backend, cfg.Search.RipgrepPath)
	if err != nil {
		return nil, fmt.Errorf("init finder: %w", err)
	}
	resolver := backlinks.New(store, f,
		backlinks.WithWorkers(cfg.Search.Workers),
		backlinks.WithVerbose(a.verbose),
		backlinks.WithLogger(logger),
	)

	d := &deps{store: store, resolver: resolver}
	var idx index.NoteIndex
	if withIndex {
		d.db, err = index.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		idx = d.db
	}
	d.svc = noteservice.NewService(store, resolver, idx, logger)
	return d, nil
}

// Backlinks prints the notes referencing target, one per line. A relative
// target is resolved against the working directory, not the notes root.
func Backlinks(ctx context.Context, target string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if target != "" && !filepath.IsAbs(target) {
		if target, err = filepath.Abs(target); err != nil {
			return fmt.Errorf("backlinks: %w", err)
		}
	}
	logger := app.logger()
	d, err := app.build(logger, false)
	if err != nil {
		return err
	}
	defer d.Close()

	found, err := d.svc.Backlinks(ctx, target, app.config.Notes.Options())
	if err != nil {
		return err
	}
	return writeLines(app.out, found)
}

// Search syncs the index with the note tree and prints up to limit matching
// note paths. reindex rebuilds the index from scratch first.
func Search(ctx context.Context, query string, limit int, reindex bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()
	d, err := app.build(logger, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if _, err := d.svc.Sync(ctx, reindex); err != nil {
		return err
	}
	results, err := d.svc.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	paths := make([]string, len(results))
	for i, r := range results {
		paths[i] = r.Path
	}
	return writeLines(app.out, paths)
}

// NewNote creates a note at path (relative to the notes root) and prints
// its path.
func NewNote(ctx context.Context, path, title string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()
	d, err := app.build(logger, false)
	if err != nil {
		return err
	}
	defer d.Close()

	note, err := d.svc.CreateNote(ctx, path, title)
	if err != nil {
		return err
	}
	logger.Debug("note created", slog.String("path", note.Path))
	return writeLines(app.out, []string{note.Path})
}

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := app.logger()
	d, err := app.build(logger, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if _, err := d.svc.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("MCP server starting", slog.String("notes_root", d.store.Root()))
	return mcpserver.New(d.svc, app.version, logger).ServeStdio()
}

// Serve runs the HTTP API with a file watcher feeding the search index and
// the event stream, until ctx is cancelled or a shutdown signal arrives.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_root", cfg.Notes.Root),
		slog.String("search_backend", cfg.Search.Backend),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	d, err := app.build(logger, true)
	if err != nil {
		return err
	}
	defer d.Close()

	if _, err := d.svc.Sync(ctx, false); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(graphThrottle)
	defer broker.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(d.svc, cfg.Auth, broker, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return index.Watch(gCtx, d.db, d.store, logger, broker.NoteChanged)
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Open event streams never finish on their own.
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}

// newHTTPHandler mounts health checks and the API under /api.
func newHTTPHandler(svc *noteservice.Service, auth AuthConfig, broker *sse.Broker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	r.Mount("/api", api.NewRouter(svc, api.Auth{
		Enabled: auth.AuthEnabled(),
		Token:   auth.Token,
	}, broker, logger))
	return r
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
