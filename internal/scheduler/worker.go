package scheduler

import (
	"context"
	"fmt"

	"hotline_backend/platform/config"
	"hotline_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Reaper abandons sessions that never heard from the provider.
type Reaper interface {
	ReapStale(ctx context.Context) (int, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	reaper Reaper
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, reaper Reaper, log *logger.Logger) (*Worker, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		reaper: reaper,
		log:    log,
	}

	mux.HandleFunc(TaskReapStaleSessions, w.handleReap)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleReap(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReapPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	reaped, err := w.reaper.ReapStale(ctx)
	if err != nil {
		return fmt.Errorf("reap stale sessions: %w", err)
	}
	if reaped > 0 {
		w.log.Info("reaped stale sessions", "reaped", reaped, "trigger", payload.Trigger)
	}
	return nil
}
