package ratelimit

import (
	"context"
	"testing"
	"time"

	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"
)

func TestAllowBoundary(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store := kv.NewLocalStoreWithClock(func() time.Time { return now })
	limiter := New(store, 4, time.Minute, logger.Discard())
	ctx := context.Background()
	key := "hotline:activate:a@example.com"

	for i := 1; i <= 4; i++ {
		ok, err := limiter.Allow(ctx, key)
		if err != nil || !ok {
			t.Fatalf("attempt %d: expected allow, got ok=%v err=%v", i, ok, err)
		}
	}

	ok, _ := limiter.Allow(ctx, key)
	if ok {
		t.Fatal("expected fifth attempt to be limited")
	}

	if ok, _ := limiter.Allow(ctx, "hotline:activate:b@example.com"); !ok {
		t.Fatal("expected other identity to have its own budget")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.Allow(ctx, key); !ok {
		t.Fatal("expected allow after the window rolls")
	}
}
