package internal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/starford/hippomind/internal/fileops"
	"github.com/starford/hippomind/internal/geometry"
	"github.com/starford/hippomind/internal/license"
	"github.com/starford/hippomind/internal/mcpserver"
	"github.com/starford/hippomind/internal/render"
	"github.com/starford/hippomind/internal/shell"
	"github.com/starford/hippomind/internal/storage"
	"github.com/starford/hippomind/internal/workspace"
)

// openLicenseStore opens the store selected by cfg.
func openLicenseStore(ctx context.Context, cfg LicenseStoreConfig) (license.Store, error) {
	switch cfg.Driver {
	case StoreDriverRedis:
		return license.NewRedisStore(ctx, license.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return license.OpenSQLite(cfg.SQLitePath)
	}
}

// RunLicenseServer serves license verification and Stripe webhooks.
func RunLicenseServer(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config.LicenseServer
	logger := newLogger(os.Stdout, app.config.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.Bool("admin_enabled", cfg.AdminTokenHash != ""))

	if cfg.WebhookSecret == "" {
		logger.Warn("webhook secret is empty, Stripe webhooks will be rejected")
	}

	store, err := openLicenseStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("init license store: %w", err)
	}
	defer store.Close()

	srv := license.NewServer(license.NewService(store, logger), license.ServerConfig{
		WebhookSecret:  cfg.WebhookSecret,
		AdminTokenHash: cfg.AdminTokenHash,
	}, logger)

	r := newRootRouter()
	r.Mount("/", srv.Routes())

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Address(),
		Handler: r,
	}
	return serve(ctx, logger, httpServer, nil, nil)
}

// RunMCP serves the library to an MCP client over stdin/stdout. Logs go
// to stderr since stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	if err := checkLicense(ctx, cfg, logger); err != nil {
		return err
	}
	lib, err := openLibrary(cfg, logger)
	if err != nil {
		return err
	}
	defer lib.db.Close()

	ws := workspace.New(lib.files, logger, workspaceOptions(cfg)...)
	logger.Info("MCP server starting", slog.String("library_path", lib.store.Root()))
	return mcpserver.New(ws, lib.db).ServeStdio()
}

// RunShell edits path in the terminal, or runs the configured script
// against it. A path that does not exist starts a blank document.
func RunShell(ctx context.Context, path string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, max(cfg.App.LogLevel, slog.LevelWarn))

	if err := checkLicense(ctx, cfg, logger); err != nil {
		return err
	}

	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		path = abs
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(app.out, "%s does not exist, starting a new document. Use 'save %s' to create it.\n", path, path)
			path = ""
		}
	}

	fonts, err := geometry.NewGoFontMeasurer()
	if err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	ws := workspace.New(fileops.New(logger), logger, workspaceOptions(cfg)...)
	sh, err := shell.New(ctx, ws, path, shell.WithOutput(app.out), shell.WithRenderer(render.New(fonts)))
	if err != nil {
		return err
	}

	if app.script != "" {
		f, err := os.Open(app.script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		return sh.RunScript(ctx, f)
	}

	rl, err := shell.NewReadline(filepath.Join(os.TempDir(), "hippomind_history"))
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()
	return sh.Run(ctx, rl)
}

// Render exports the document at in to out; the format follows out's
// extension.
func Render(ctx context.Context, in, out string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)

	format, err := render.FormatFromPath(out)
	if err != nil {
		return err
	}
	res := fileops.New(logger).Open(ctx, in)
	if !res.Success {
		return res.Err
	}
	fonts, err := geometry.NewGoFontMeasurer()
	if err != nil {
		return fmt.Errorf("load fonts: %w", err)
	}
	var buf bytes.Buffer
	if err := render.New(fonts).Render(&buf, res.Data, format); err != nil {
		return err
	}
	if err := storage.WriteFile(out, buf.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(app.out, "wrote %s (%d bytes)\n", out, buf.Len())
	return nil
}

// Keygen prints a new license key, or the key a checkout session maps to.
func Keygen(sessionID string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	var key string
	if sessionID != "" {
		key = license.KeyFromSession(sessionID)
	} else if key, err = license.GenerateKey(); err != nil {
		return err
	}
	fmt.Fprintln(app.out, key)
	return nil
}

// HashToken prints the bcrypt hash to put in license_server.admin_token_hash.
func HashToken(token string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	hash, err := license.HashAdminToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, hash)
	return nil
}

// Activate activates key with the license server and caches it locally.
func Activate(ctx context.Context, key string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config.License
	logger := newLogger(os.Stderr, app.config.App.LogLevel)

	gate := license.NewGate(cfg.CachePath, license.NewClient(cfg.Endpoint, logger))
	rec, err := gate.Activate(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.out, "License %s activated for %s\n", rec.Key, rec.Email)
	return nil
}
