// Package internal provides the main application initialization and runtime logic.
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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/hippomind/internal/api"
	"github.com/starford/hippomind/internal/editor"
	"github.com/starford/hippomind/internal/fileops"
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/index"
	"github.com/starford/hippomind/internal/license"
	"github.com/starford/hippomind/internal/mindmap"
	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/sse"
	"github.com/starford/hippomind/internal/storage"
	"github.com/starford/hippomind/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger and installs it as the default.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// library is the document folder with its index.
type library struct {
	store *storage.FS
	db    *index.DB
	files *fileops.Service
}

func openLibrary(cfg *Config, logger *slog.Logger) (*library, error) {
	if err := os.MkdirAll(cfg.Library.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	files := fileops.New(logger, fileops.WithLibrary(store, db), fileops.WithPreferences(db))
	return &library{store: store, db: db, files: files}, nil
}

// workspaceOptions maps the editor section onto workspace options.
func workspaceOptions(cfg *Config) []workspace.Option {
	opts := []workspace.Option{
		workspace.WithAutosaveInterval(cfg.Editor.AutosaveInterval),
		workspace.WithEditorOptions(editor.WithHistoryLimit(cfg.Editor.HistoryMaxDepth)),
	}
	if theme, ok := mindmap.ThemeByName(cfg.Editor.Theme); ok {
		opts = append(opts, workspace.WithDefaultTheme(theme))
	}
	return opts
}

// checkLicense refuses to continue when a license is required and the
// cached one is missing or rejected. An unreachable server keeps a
// previously verified license valid.
func checkLicense(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if !cfg.License.Required {
		return nil
	}
	gate := license.NewGate(cfg.License.CachePath, license.NewClient(cfg.License.Endpoint, logger))
	if !gate.IsLicensed() {
		return errors.New("a license is required: run 'hippomind activate <key>'")
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	ok, err := gate.Revalidate(ctx)
	if !ok {
		return fmt.Errorf("license check failed: %w", err)
	}
	if err != nil {
		logger.Warn("license cache update failed", slog.String("error", err.Error()))
	}
	return nil
}

// newRootRouter returns a chi router with the common middleware and the
// unauthenticated health endpoints.
func newRootRouter() chi.Router {
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
	return r
}

// serve runs httpServer and the background tasks until a signal arrives
// or one of them fails. onShutdown runs after the HTTP server has stopped.
func serve(ctx context.Context, logger *slog.Logger, httpServer *http.Server,
	tasks []func(context.Context) error, onShutdown func(context.Context)) error {
	g, gCtx := errgroup.WithContext(ctx)

	for _, task := range tasks {
		g.Go(func() error { return task(gCtx) })
	}

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

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if onShutdown != nil {
			onShutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// Run starts the editor server: HTTP API, SSE events, library watcher
// and autosave.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := checkLicense(ctx, cfg, logger); err != nil {
		return err
	}

	lib, err := openLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer lib.db.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	ws := workspace.New(lib.files, logger, append(workspaceOptions(cfg),
		workspace.WithNotifier(func(ev workspace.Event) {
			broker.PublishTabEvent(ev.Kind, ev.TabID, ev.FilePath)
		}),
	)...)

	fonts, err := geometry.NewGoFontMeasurer()
	if err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}

	h := api.NewHandler(api.Deps{
		Workspace: ws,
		Library:   lib.store,
		Index:     lib.db,
		Prefs:     lib.db,
		Renderer:  render.New(fonts),
		Measurer:  fonts,
		Locale:    cfg.Editor.Locale,
	})
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := newRootRouter()
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	watch := func(ctx context.Context) error {
		err := index.Watch(ctx, lib.db, lib.store, logger, func(kind, path string) {
			broker.PublishDocumentEvent(kind, path)
			if kind != index.ChangeDeleted {
				ws.FileChanged(ctx, path)
			}
		})
		if err != nil {
			logger.Warn("library watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	}
	autosave := func(ctx context.Context) error {
		return ws.StartAutosave(ctx)
	}

	return serve(ctx, logger, httpServer, []func(context.Context) error{watch, autosave},
		func(ctx context.Context) {
			ws.StopAutosave()
			if n := ws.Autosave(ctx); n > 0 {
				logger.Info("Saved open documents", slog.Int("tabs", n))
			}
		})
}
