// Package ratelimit implements the fixed-window activation limiter keyed by
// caller identity.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"
)

// Limiter allows at most max events per window for each key.
type Limiter struct {
	store  kv.Store
	max    int64
	window time.Duration
	log    *logger.Logger
}

// New creates a limiter. max and window must be positive.
func New(store kv.Store, max int, window time.Duration, log *logger.Logger) *Limiter {
	return &Limiter{store: store, max: int64(max), window: window, log: log}
}

// Allow counts one event against key and reports whether it is within budget.
// A store failure allows the event and is logged.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.store.IncrWindow(ctx, key, l.window)
	if err != nil {
		l.log.WithContext(ctx).EventError("rate_limit_error",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true, nil
	}
	return n <= l.max, nil
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}
