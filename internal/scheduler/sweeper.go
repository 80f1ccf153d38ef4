package scheduler

import (
	"context"
	"time"

	"hotline_backend/platform/logger"
)

// Sweeper runs the reaper on a ticker inside the API process.
type Sweeper struct {
	reaper   Reaper
	interval time.Duration
	log      *logger.Logger
}

func NewSweeper(reaper Reaper, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultReapInterval
	}
	return &Sweeper{reaper: reaper, interval: interval, log: log}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.reaper == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	reaped, err := s.reaper.ReapStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("stale session sweep failed", "error", err)
		}
		return
	}

	if reaped > 0 {
		s.log.Info("stale session sweep reaped sessions", "reaped", reaped)
	}
}
