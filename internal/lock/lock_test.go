package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type brokenStore struct{}

func (brokenStore) SetNX(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("down")
}

func (brokenStore) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("down")
}

func TestKey(t *testing.T) {
	if got := Key("bridge", "CA1"); got != "hotline:bridge:CA1" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestTryAcquireSharedAcrossManagers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	// Two managers stand in for two processes sharing one cache.
	a := NewManager(kv.NewRedisStore(client, ""), logger.Discard())
	b := NewManager(kv.NewRedisStore(client, ""), logger.Discard())
	ctx := context.Background()
	key := Key("bridge", "CA1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		m := a
		if i%2 == 1 {
			m = b
		}
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			if m.TryAcquire(ctx, key, 2*time.Minute) {
				wins.Add(1)
			}
		}(m)
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("expected one winner across managers, got %d", got)
	}

	mr.FastForward(2 * time.Minute)
	if !b.TryAcquire(ctx, key, 2*time.Minute) {
		t.Fatal("expected re-acquire after ttl")
	}
}

func TestTryAcquireFailsOpenOnStoreError(t *testing.T) {
	m := NewManager(brokenStore{}, logger.Discard())
	if !m.TryAcquire(context.Background(), Key("bridge", "CA1"), time.Minute) {
		t.Fatal("expected store error to fail open")
	}
}

func TestTryAcquireWithLocalFallback(t *testing.T) {
	store := kv.NewFallbackStore(brokenStore{}, kv.NewLocalStore(), logger.Discard())
	m := NewManager(store, logger.Discard())
	ctx := context.Background()

	if !m.TryAcquire(ctx, Key("bridge", "CA9"), time.Minute) {
		t.Fatal("expected first acquire to succeed locally")
	}
	if m.TryAcquire(ctx, Key("bridge", "CA9"), time.Minute) {
		t.Fatal("expected local fallback to suppress second acquire")
	}
}
