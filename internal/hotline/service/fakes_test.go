package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/hotline/policy"
	"hotline_backend/internal/lock"
	"hotline_backend/internal/ratelimit"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/apperr"
	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"

	"github.com/google/uuid"
)

// memStore is an IncidentStore with the same conditional-update semantics as
// the Postgres repository.
type memStore struct {
	mu        sync.Mutex
	incidents map[uuid.UUID]domain.Incident
	createErr error
	applies   int
}

func newMemStore() *memStore {
	return &memStore{incidents: make(map[uuid.UUID]domain.Incident)}
}

func (m *memStore) put(inc domain.Incident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = inc
}

func (m *memStore) get(id uuid.UUID) domain.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incidents[id]
}

func (m *memStore) Create(_ context.Context, inc domain.Incident) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.put(inc)
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return inc, nil
}

func (m *memStore) FindByCallID(_ context.Context, callID string) (domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *domain.Incident
	for _, inc := range m.incidents {
		if inc.ProviderCallID == callID {
			candidate := inc
			if found == nil || candidate.CreatedAt.After(found.CreatedAt) {
				found = &candidate
			}
		}
	}
	if found == nil {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return *found, nil
}

func (m *memStore) sorted(filter func(domain.Incident) bool, newestFirst bool) []domain.Incident {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Incident, 0)
	for _, inc := range m.incidents {
		if filter(inc) {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *memStore) ListOpenBySubject(_ context.Context, subjectID string) ([]domain.Incident, error) {
	return m.sorted(func(inc domain.Incident) bool {
		return inc.SubjectID == subjectID && !inc.IsResolved()
	}, true), nil
}

func (m *memStore) LastResolvedBySubject(_ context.Context, subjectID string) (domain.Incident, error) {
	resolved := m.sorted(func(inc domain.Incident) bool {
		return inc.SubjectID == subjectID && inc.IsResolved()
	}, true)
	if len(resolved) == 0 {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return resolved[0], nil
}

func (m *memStore) NewestUnplaced(_ context.Context, since time.Time) (domain.Incident, error) {
	found := m.sorted(func(inc domain.Incident) bool {
		return inc.Status == domain.StatusInitiated && inc.CallPlaced && inc.ProviderCallID == "" &&
			!inc.IsResolved() && inc.CreatedAt.After(since)
	}, true)
	if len(found) == 0 {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	return found[0], nil
}

func (m *memStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]domain.Incident, error) {
	found := m.sorted(func(inc domain.Incident) bool {
		return inc.Status == domain.StatusInitiated && !inc.IsResolved() && inc.CreatedAt.Before(cutoff)
	}, false)
	if len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

func (m *memStore) AttachCallID(_ context.Context, id uuid.UUID, callID string, onlyIfUnset bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return false, nil
	}
	if onlyIfUnset && inc.ProviderCallID != "" {
		return false, nil
	}
	inc.ProviderCallID = callID
	m.incidents[id] = inc
	return true, nil
}

func (m *memStore) Apply(_ context.Context, id uuid.UUID, u domain.Update) (domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	if !ok {
		return domain.Incident{}, domain.ErrIncidentNotFound
	}
	updated, err := inc.Apply(u)
	if err != nil {
		return inc, err
	}
	m.applies++
	m.incidents[id] = updated
	return updated, nil
}

type fakeDirectory struct {
	subjects map[string]domain.Subject
	relays   map[string]string
	err      error
}

func (f *fakeDirectory) FindByEmail(_ context.Context, email string) (domain.Subject, error) {
	if f.err != nil {
		return domain.Subject{}, f.err
	}
	s, ok := f.subjects[email]
	if !ok {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	return s, nil
}

func (f *fakeDirectory) FindByID(_ context.Context, subjectID string) (domain.Subject, error) {
	if f.err != nil {
		return domain.Subject{}, f.err
	}
	for _, s := range f.subjects {
		if s.SubjectID == subjectID {
			return s, nil
		}
	}
	return domain.Subject{}, domain.ErrSubjectNotFound
}

func (f *fakeDirectory) RelayNumber(_ context.Context, email string) (string, error) {
	return f.relays[email], nil
}

type fakeCalls struct {
	mu       sync.Mutex
	placed   []string
	ended    []string
	callID   string
	placeErr error
	endErr   error
}

func (f *fakeCalls) PlaceCall(_ context.Context, to, _ string) (telephony.PlacedCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, to)
	if f.placeErr != nil {
		return telephony.PlacedCall{}, f.placeErr
	}
	return telephony.PlacedCall{CallID: f.callID, Status: "queued"}, nil
}

func (f *fakeCalls) EndCall(_ context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, callID)
	return f.endErr
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, 0)
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	memberEmail    = "a@example.com"
	memberSubject  = "WOLF-A"
	memberPhone    = "+14155552671"
	operatorNumber = "+14155552699"
)

type harness struct {
	svc       *Service
	store     *memStore
	directory *fakeDirectory
	calls     *fakeCalls
	published *recordingPublisher
	clock     *clock
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	clk := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	kvStore := kv.NewLocalStoreWithClock(clk.Now)

	h := &harness{
		store: newMemStore(),
		directory: &fakeDirectory{
			subjects: map[string]domain.Subject{
				memberEmail: {SubjectID: memberSubject, Email: memberEmail, VerifiedPhone: memberPhone, Tier: "Silver", Region: "NYC"},
			},
			relays: map[string]string{},
		},
		calls:     &fakeCalls{callID: "CA123"},
		published: &recordingPublisher{},
		clock:     clk,
	}

	opts := Options{
		PublicBaseURL:  "https://hotline.example.com",
		CallerID:       "+14155552600",
		OperatorNumber: operatorNumber,
		Production:     true,
		PhoneRegion:    "US",
	}
	for _, m := range mutate {
		m(&opts)
	}

	h.svc = New(Deps{
		Incidents: h.store,
		Subjects:  h.directory,
		Calls:     h.calls,
		Locks:     lock.NewManager(kvStore, logger.Discard()),
		Limiter:   ratelimit.New(kvStore, 4, time.Minute, logger.Discard()),
		Events:    h.published,
		Policy:    policy.Default(),
		Log:       logger.Discard(),
	}, opts)
	h.svc.now = clk.Now
	return h
}

func (h *harness) seed(mutate func(*domain.Incident)) domain.Incident {
	inc := domain.Incident{
		ID:         uuid.New(),
		SubjectID:  memberSubject,
		Status:     domain.StatusInitiated,
		CallPlaced: true,
		Persisted:  true,
		CreatedAt:  h.clock.Now(),
	}
	if mutate != nil {
		mutate(&inc)
	}
	h.store.put(inc)
	return inc
}

var errBoom = errors.New("boom")

func member() Caller {
	return Caller{SubjectID: memberSubject, Email: memberEmail}
}

func asAppErr(err error, target **apperr.Error) bool {
	return errors.As(err, target)
}
