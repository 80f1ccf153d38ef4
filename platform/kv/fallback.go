package kv

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"hotline_backend/platform/logger"
)

// FallbackStore prefers a shared primary store and degrades to a local store
// when the primary is missing or failing. While degraded, guarantees hold only
// within this process. The transition into and out of degraded mode is logged
// once each way.
type FallbackStore struct {
	primary  Store
	local    Store
	degraded atomic.Bool
	log      *logger.Logger
}

var _ Store = (*FallbackStore)(nil)

// NewFallbackStore creates a store that uses primary when it is healthy.
// A nil primary means every call goes to local; this is logged once here.
func NewFallbackStore(primary Store, local Store, log *logger.Logger) *FallbackStore {
	s := &FallbackStore{primary: primary, local: local, log: log}
	if primary == nil {
		s.degraded.Store(true)
		log.EventWarn("kv_local_only",
			slog.String("detail", "no shared cache configured; locks and rate limits are per-process"),
		)
	}
	return s
}

// Degraded reports whether the last call was served by the local store.
func (s *FallbackStore) Degraded() bool {
	return s.degraded.Load()
}

// SetNX implements Store.
func (s *FallbackStore) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.primary != nil {
		ok, err := s.primary.SetNX(ctx, key, ttl)
		if err == nil {
			s.recovered()
			return ok, nil
		}
		s.degrade(err)
	}
	return s.local.SetNX(ctx, key, ttl)
}

// IncrWindow implements Store.
func (s *FallbackStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if s.primary != nil {
		n, err := s.primary.IncrWindow(ctx, key, window)
		if err == nil {
			s.recovered()
			return n, nil
		}
		s.degrade(err)
	}
	return s.local.IncrWindow(ctx, key, window)
}

func (s *FallbackStore) degrade(err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.log.EventWarn("kv_degraded",
			slog.String("error", err.Error()),
			slog.String("detail", "shared cache unavailable; falling back to per-process store"),
		)
	}
}

func (s *FallbackStore) recovered() {
	if s.degraded.CompareAndSwap(true, false) {
		s.log.Event("kv_recovered")
	}
}
