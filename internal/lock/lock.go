// Package lock provides the non-blocking idempotency lock used to guard
// single-shot side effects such as emitting a bridge instruction.
package lock

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"
)

const keyPrefix = "hotline:"

// Manager hands out TTL locks backed by a kv.Store.
type Manager struct {
	store kv.Store
	log   *logger.Logger
}

// NewManager creates a lock manager over store.
func NewManager(store kv.Store, log *logger.Logger) *Manager {
	return &Manager{store: store, log: log}
}

// Key builds a lock key from its parts, e.g. Key("bridge", callID).
func Key(parts ...string) string {
	return keyPrefix + strings.Join(parts, ":")
}

// TryAcquire reports whether the caller now holds key for ttl. It never
// blocks. Store errors fail open and are logged.
func (m *Manager) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	ok, err := m.store.SetNX(ctx, key, ttl)
	if err != nil {
		m.log.WithContext(ctx).EventError("lock_error",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}
	if !ok {
		m.log.WithContext(ctx).Debug("lock held", slog.String("key", key))
	}
	return ok
}
