package kv

import (
	"context"
	"sync"
	"time"
)

type localCounter struct {
	count   int64
	resetAt time.Time
}

// LocalStore is a process-local Store. Keys set with SetNX are removed by an
// expiry timer; reads also compare against the clock so an injected clock
// behaves the same as wall time.
type LocalStore struct {
	mu       sync.Mutex
	keys     map[string]time.Time
	timers   map[string]*time.Timer
	counters map[string]*localCounter
	now      func() time.Time
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates a process-local store using wall-clock time.
func NewLocalStore() *LocalStore {
	return NewLocalStoreWithClock(time.Now)
}

// NewLocalStoreWithClock creates a process-local store with an injected clock.
func NewLocalStoreWithClock(now func() time.Time) *LocalStore {
	return &LocalStore{
		keys:     make(map[string]time.Time),
		timers:   make(map[string]*time.Timer),
		counters: make(map[string]*localCounter),
		now:      now,
	}
}

// SetNX implements Store.
func (s *LocalStore) SetNX(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiresAt, ok := s.keys[key]; ok && now.Before(expiresAt) {
		return false, nil
	}

	expiresAt := now.Add(ttl)
	s.keys[key] = expiresAt
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(ttl, func() { s.expire(key, expiresAt) })
	return true, nil
}

func (s *LocalStore) expire(key string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.keys[key]; ok && current.Equal(expiresAt) {
		delete(s.keys, key)
		delete(s.timers, key)
	}
}

// IncrWindow implements Store.
func (s *LocalStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, k)
		}
	}

	c, ok := s.counters[key]
	if !ok {
		c = &localCounter{resetAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}
