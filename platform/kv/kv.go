// Package kv provides the small key-value capability shared by the lock
// manager and the activation rate limiter: atomic set-if-absent with a TTL and
// atomic increment within a fixed window. A Redis-backed implementation is
// shared across processes; the local implementation is correct only within
// one process.
// This is part of the platform layer and contains no business logic.
package kv

import (
	"context"
	"time"
)

// Store is the key-value capability.
type Store interface {
	// SetNX stores key for ttl if it is absent. It reports whether the key was set.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// IncrWindow increments the counter at key and returns the new value. The
	// first increment starts a window of the given length; the counter resets
	// once the window has elapsed.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
