package scheduler

import (
	"context"
	"fmt"
	"time"

	"hotline_backend/platform/config"
	"hotline_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const defaultReapInterval = time.Minute

// Periodic registers the recurring reap task with an asynq scheduler so that
// exactly one sweep is enqueued per interval across every replica.
type Periodic struct {
	scheduler *asynq.Scheduler
	interval  time.Duration
	queue     string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.GetReapInterval()
	if interval <= 0 {
		interval = defaultReapInterval
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Warn("periodic task enqueue failed", "task", TaskReapStaleSessions, "error", err)
			}
		},
	})

	return &Periodic{
		scheduler: scheduler,
		interval:  interval,
		queue:     queueName(cfg),
		log:       log,
	}, nil
}

// Spec returns the cron spec the reap task is registered under.
func (p *Periodic) Spec() string {
	return reapSpec(p.interval)
}

func reapSpec(interval time.Duration) string {
	return fmt.Sprintf("@every %s", interval)
}

// Run registers the reap task and blocks until ctx is done.
func (p *Periodic) Run(ctx context.Context) error {
	if p == nil || p.scheduler == nil {
		return nil
	}

	task, err := NewReapTask(ReapPayload{Trigger: "periodic"})
	if err != nil {
		return err
	}
	// A sweep that is still queued when the next tick fires is not duplicated.
	entryID, err := p.scheduler.Register(p.Spec(), task, asynq.Queue(p.queue), asynq.Unique(p.interval))
	if err != nil {
		return fmt.Errorf("register reap task: %w", err)
	}

	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	p.log.Info("periodic reap registered", "entryId", entryID, "spec", p.Spec())

	<-ctx.Done()
	p.scheduler.Shutdown()
	return nil
}
