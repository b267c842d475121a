// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/starford/contentstore/internal/api"
	"github.com/starford/contentstore/internal/catalog"
	"github.com/starford/contentstore/internal/content"
	"github.com/starford/contentstore/internal/contentservice"
	"github.com/starford/contentstore/internal/invalidate"
	"github.com/starford/contentstore/internal/mcpserver"
	"github.com/starford/contentstore/internal/pipeline"
	"github.com/starford/contentstore/internal/sse"
	"github.com/starford/contentstore/internal/storage"
	"github.com/starford/contentstore/internal/watch"
)

// runtime holds the components shared by every command.
type runtime struct {
	logger *slog.Logger
	store  *content.Store
	svc    *contentservice.Service
	db     *catalog.DB
}

func (rt *runtime) close() {
	rt.store.Close()
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("catalog close failed", slog.String("error", err.Error()))
		}
	}
}

// bootstrap builds the logger, content store, catalog and service.
func bootstrap(app *application) (*runtime, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("content_root", cfg.Content.Root),
		slog.Int("collections", len(cfg.Content.Collections)),
		slog.Bool("catalog_enabled", cfg.Catalog.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure content directory exists.
	if err := os.MkdirAll(cfg.Content.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}

	provider, err := storage.NewFS(cfg.Content.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	hub := invalidate.NewHub()
	storeOpts := []content.StoreOption{content.WithLogger(logger)}
	if cfg.Content.Concurrency > 0 {
		storeOpts = append(storeOpts, content.WithConcurrency(cfg.Content.Concurrency))
	}
	rt := &runtime{
		logger: logger,
		store:  content.NewStore(provider, hub, storeOpts...),
	}

	deps := contentservice.Deps{
		Store:    rt.store,
		Hub:      hub,
		Registry: pipeline.NewRegistry(),
		Logger:   logger,
	}
	if cfg.Catalog.Enabled {
		db, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("init catalog: %w", err)
		}
		rt.db = db
		deps.Catalog = db
	}

	svc, err := contentservice.New(deps, cfg.Content.Collections)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("init content service: %w", err)
	}
	rt.svc = svc
	return rt, nil
}

// Run starts the HTTP server and, when enabled, the content watcher.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	rt, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := app.config
	logger := rt.logger
	svc := rt.svc

	svc.Warm(ctx)

	// SSE broker.
	broker := sse.NewBroker(cfg.Watch.EventThrottle)
	defer broker.Close()

	publish := func(op, path string, collections []string) {
		broker.PublishChange(sse.Change{Op: op, Path: path, Collections: collections})
	}

	apiRouter := api.NewRouter(svc, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      broker,
		OnInvalidate: func(path string, collections []string) {
			publish("invalidated", path, collections)
		},
	})

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
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

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			err := watch.Watch(gCtx, cfg.Content.Root, logger, func(ev watch.Event) {
				path := ev.Path
				if ev.Op == watch.Resync {
					path = ""
				}
				collections := svc.Invalidate(path)
				logger.Debug("content changed",
					slog.String("op", string(ev.Op)),
					slog.String("path", ev.Path),
					slog.Any("collections", collections))
				publish(string(ev.Op), path, collections)
			})
			if err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		broker.Close()

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup context so the watcher stops with the
// server.
var errShutdown = errors.New("shutdown")

// RunQuery resolves one collection page and writes it as JSON.
func RunQuery(ctx context.Context, name string, page *int, opts ...Option) error {
	app := newApplication(opts)
	rt, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer rt.close()

	coll, err := rt.svc.QueryCollection(ctx, name, page)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(coll); err != nil {
		return err
	}
	if app.outputFile != "" {
		if err := atomic.WriteFile(app.outputFile, &buf); err != nil {
			return fmt.Errorf("write %s: %w", app.outputFile, err)
		}
		rt.logger.Info("Collection written",
			slog.String("collection", name),
			slog.String("file", app.outputFile),
			slog.Int("total_entries", coll.TotalEntries))
		return nil
	}
	_, err = app.out.Write(buf.Bytes())
	return err
}

// RunMCP serves the content tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app := newApplication(opts)
	rt, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.svc.Warm(ctx)
	rt.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}
