// stockd serves the Gizmo stock-counting API: catalog reads, pending edits,
// batch apply to the POS, and counting sessions, over REST and MCP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gizmo-stock/internal/batch"
	"gizmo-stock/internal/cache"
	"gizmo-stock/internal/clock"
	"gizmo-stock/internal/config"
	"gizmo-stock/internal/gizmo"
	"gizmo-stock/internal/handler"
	"gizmo-stock/internal/inventory"
	"gizmo-stock/internal/metrics"
	"gizmo-stock/internal/middleware"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/operator"
	"gizmo-stock/internal/session"
	"gizmo-stock/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("gizmo_url", cfg.BaseURL()),
		slog.String("station", cfg.StationID),
		slog.String("batch_strategy", string(cfg.BatchOptions().Strategy)),
	)

	st, err := store.Open(cfg.StateDSN, logger)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer st.Close()

	m := metrics.New(true)
	clk := clock.New()

	images := cache.New[string](cache.Options{
		Name:     "images",
		TTL:      cache.ImageTTL,
		Clock:    clk,
		Store:    st,
		Key:      cache.ImageKey,
		OnLookup: m.ObserveCacheLookup,
		Logger:   logger,
	})
	products := cache.New[[]model.Product](cache.Options{
		Name:     "products",
		TTL:      cache.ProductTTL,
		Clock:    clk,
		Store:    st,
		Key:      cache.ProductKey,
		OnLookup: m.ObserveCacheLookup,
		Logger:   logger,
	})
	for _, c := range []interface{ Load(context.Context) error }{images, products} {
		if err := c.Load(ctx); err != nil {
			logger.Warn("restoring cache", slog.String("error", err.Error()))
		}
	}

	ledger, err := session.New(ctx, session.Options{Clock: clk, Store: st, Logger: logger})
	if err != nil {
		return fmt.Errorf("restoring counting session: %w", err)
	}

	gc := cfg.GizmoClient()
	gc.Logger = logger
	gc.OnRetry = func(category string, attempt int, err error, delay time.Duration) {
		m.ObserveRetry(category)
	}
	pos, err := gizmo.New(gc)
	if err != nil {
		return fmt.Errorf("creating gizmo client: %w", err)
	}

	bo := cfg.BatchOptions()
	bo.Logger = logger

	svc := inventory.New(inventory.Options{
		POS:        pos,
		Ledger:     ledger,
		Dispatcher: batch.New(bo),
		Images:     images,
		Products:   products,
		Audit:      st,
		Metrics:    m,
		Clock:      clk,
		Logger:     logger,
	})

	h := handler.New(handler.Config{
		Inventory: svc,
		Audit:     st,
		Metrics:   m.Handler(),
		Logger:    logger,
	})

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → operator → logging → handler
	// Recovery must be outermost to catch panics from every other layer
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		operator.Middleware(cfg.StationID, logger),
		middleware.Logging(logger),
	)(mux)

	// Create HTTP server with timeouts. Batch applies pace their windows,
	// so writes get a generous deadline.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	go pruneCaches(pruneCtx, logger, images)

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests, including a running apply, time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	for _, c := range []interface{ Save(context.Context) error }{images, products} {
		if err := c.Save(context.Background()); err != nil {
			logger.Warn("persisting cache", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
	return nil
}

// pruneCaches drops expired image entries hourly so the persisted blob
// does not grow without bound.
func pruneCaches(ctx context.Context, logger *slog.Logger, images *cache.TTLCache[string]) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := images.Prune(); n > 0 {
				logger.Debug("pruned image cache", slog.Int("removed", n))
				if err := images.Save(ctx); err != nil {
					logger.Warn("persisting image cache", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
