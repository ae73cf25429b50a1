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
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/bearlinks/internal/api"
	"github.com/starford/bearlinks/internal/apperr"
	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/mcpserver"
	"github.com/starford/bearlinks/internal/modcache"
	"github.com/starford/bearlinks/internal/models"
	"github.com/starford/bearlinks/internal/noteservice"
	"github.com/starford/bearlinks/internal/sse"
	"github.com/starford/bearlinks/internal/store"
	"github.com/starford/bearlinks/internal/watch"
	"github.com/starford/bearlinks/internal/writer"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		command:   CommandSync,
		logOutput: os.Stderr,
		version:   "dev",
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := newLogger(cfg.App, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("command", string(app.command)),
		slog.String("store_path", cfg.Store.Path),
		slog.Bool("dry_run", app.dryRun),
		slog.Bool("cache", cfg.Cache.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.Store.Path, cfg.Store.LinksTable, cfg.Store.BusyTimeout)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	svcOpts := []noteservice.Option{
		noteservice.WithOrder(models.LinkOrder(cfg.Backlinks.Order)),
		noteservice.WithDryRun(app.dryRun),
		noteservice.WithLogger(logger),
	}
	if cfg.Backup.Enabled {
		if app.command == CommandWatch && cfg.Backup.Keep == 0 {
			logger.Warn("backup.keep is 0: every watched sweep adds a full store copy")
		}
		svcOpts = append(svcOpts, noteservice.WithBackup(cfg.Store.Path, cfg.Backup.Keep))
	}
	if cfg.Cache.Enabled {
		cache, err := openCache(cfg.Cache.Path, logger)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		defer cache.Close()
		svcOpts = append(svcOpts, noteservice.WithCache(cache))
	}

	var broker *sse.Broker
	if app.command == CommandWatch && cfg.Status.Port > 0 {
		broker = sse.NewBroker()
		defer broker.Close()
		svcOpts = append(svcOpts, noteservice.WithNotifier(broker))
	}

	dispatcher := writer.NewDispatcher(app.noteWriter(logger))
	format := cfg.Backlinks.Format()
	svc := noteservice.NewService(db, dispatcher, format, svcOpts...)

	g, gCtx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gCtx)
	defer stop()

	// Start the writer dispatcher.
	g.Go(func() error {
		return dispatcher.Run(runCtx)
	})

	var httpServer *http.Server
	if broker != nil {
		httpServer = &http.Server{
			Addr:              cfg.Status.Address(),
			Handler:           api.NewRouter(svc, cfg.Status.Token, broker),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting status server", slog.String("address", cfg.Status.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Run the command; its return ends the dispatcher and the status server.
	g.Go(func() error {
		defer stop()
		return app.execute(runCtx, svc, db, format, logger)
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			stop()
		case <-runCtx.Done():
		}

		if httpServer != nil {
			logger.Info("Shutting down status server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	return nil
}

func (a *application) execute(ctx context.Context, svc *noteservice.Service, db *store.DB, format backlinks.Format, logger *slog.Logger) error {
	switch a.command {
	case CommandSync:
		_, err := svc.Sync(ctx)
		return err

	case CommandStrip:
		_, err := svc.Strip(ctx)
		return err

	case CommandSnapshot:
		n, err := svc.Snapshot(ctx)
		if err != nil {
			return err
		}
		logger.Info("Snapshot recorded", slog.Int("notes", n))
		return nil

	case CommandWatch:
		if _, err := svc.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, apperr.ErrStoreUnavailable) {
				return err
			}
			logger.Warn("initial sync skipped", slog.String("error", err.Error()))
		}
		return watch.Watch(ctx, a.config.Store.Path, a.config.Watch.Debounce, logger, func(ctx context.Context) error {
			_, err := svc.Sync(ctx)
			return err
		})

	case CommandMCP:
		if err := db.Ping(ctx); err != nil {
			return err
		}
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc, format, a.version).ServeStdio()

	default:
		return fmt.Errorf("unknown command %q", a.command)
	}
}

func (a *application) noteWriter(logger *slog.Logger) backlinks.Writer {
	if a.writer != nil {
		return a.writer
	}
	if a.dryRun {
		return writer.NewLogWriter(logger)
	}
	wc := a.config.Writer
	return writer.NewBear(
		writer.WithCommand(wc.Command, wc.Args...),
		writer.WithBaseURL(wc.BaseURL),
		writer.WithSettleDelay(wc.SettleDelay),
	)
}

func newLogger(cfg ApplicationConfig, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == LogFormatText {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// openCache opens the modification cache, replacing a file that cannot be
// read with an empty one.
func openCache(path string, logger *slog.Logger) (*modcache.Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	cache, err := modcache.Open(path)
	if err == nil {
		return cache, nil
	}
	if !errors.Is(err, apperr.ErrCacheUnreadable) {
		return nil, err
	}
	logger.Warn("cache unreadable, starting cold", slog.String("path", path), slog.String("error", err.Error()))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove cache: %w", err)
	}
	return modcache.Open(path)
}
