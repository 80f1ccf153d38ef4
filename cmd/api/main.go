package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotline_backend/internal/email"
	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline"
	apphttp "hotline_backend/internal/http"
	"hotline_backend/internal/http/router"
	"hotline_backend/internal/metrics"
	"hotline_backend/internal/notification"
	"hotline_backend/internal/scheduler"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/config"
	"hotline_backend/platform/db"
	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"
	"hotline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	store, closeStore := initStore(ctx, cfg, log)
	defer closeStore()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	appMetrics := metrics.New()
	appMetrics.RegisterHandlers(eventBus)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events (not HTTP-facing)
	notificationModule := notification.New(cfg, email.NewSender(cfg), log)
	notificationModule.RegisterHandlers(eventBus)

	calls := telephony.NewClient(cfg, log)
	if calls == nil {
		log.Warn("telephony provider not configured; activations will not place calls")
	}

	hotlineModule, err := hotline.NewModule(pool, store, calls, eventBus, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize hotline module", "error", err)
		panic("failed to initialize hotline module: " + err.Error())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  pool,
		Metrics: appMetrics,
		Modules: []apphttp.Module{
			hotlineModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweeper := scheduler.NewSweeper(hotlineModule.Service(), cfg.GetReapInterval(), log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}

	// Let in-flight notifications finish before the pool closes.
	eventBus.Wait()
	log.Info("server stopped")
}

// initStore connects the shared cache when one is configured. Without it, or
// when it is unreachable at boot, locks and rate limits are per-process.
func initStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (kv.Store, func()) {
	local := kv.NewLocalStore()
	if !cfg.IsRedisEnabled() {
		return kv.NewFallbackStore(nil, local, log), func() {}
	}

	var primary kv.Store
	closeFn := func() {}
	if err := withRetry(ctx, log, "redis connection", 3, time.Second, func() error {
		client, err := kv.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		primary = kv.NewRedisStore(client, "")
		closeFn = func() { _ = client.Close() }
		return nil
	}); err != nil {
		log.Warn("redis unavailable at startup; continuing with local store", "error", err)
	}

	return kv.NewFallbackStore(primary, local, log), closeFn
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
