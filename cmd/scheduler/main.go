package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotline_backend/internal/email"
	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "reapInterval", cfg.GetReapInterval().String())

	if !cfg.IsRedisEnabled() {
		panic("REDIS_URL is required for the scheduler; the API runs an in-process sweeper without it")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

	// Reaped sessions emit resolution events; alert on-call from here too.
	notificationModule := notification.New(cfg, email.NewSender(cfg), log)
	notificationModule.RegisterHandlers(eventBus)

	// The reaper never takes locks or counts activations, so a local store
	// is enough for the module wiring.
	store := kv.NewLocalStore()
	hotlineModule, err := hotline.NewModule(pool, store, telephony.NewClient(cfg, log), eventBus, validator.New(), cfg, log)
	if err != nil {
		log.Error("failed to initialize hotline module", "error", err)
		panic("failed to initialize hotline module: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	worker, err := scheduler.NewWorker(cfg, hotlineModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	// Catch up on sessions that went stale while no scheduler was running.
	if err := client.EnqueueReap(ctx, "startup", cfg.GetReapInterval()); err != nil {
		log.Warn("failed to enqueue startup sweep", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return periodic.Run(gctx)
	})
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("scheduler stopped with error", "error", err)
	}

	eventBus.Wait()
	log.Info("scheduler stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
