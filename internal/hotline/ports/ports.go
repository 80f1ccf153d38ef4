// Package ports declares what the hotline services need from the outside
// world. Implementations live in repository/ (Postgres), internal/telephony,
// internal/lock and internal/ratelimit.
package ports

import (
	"context"
	"time"

	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/telephony"

	"github.com/google/uuid"
)

// IncidentStore reads and writes incidents. Lookups that find nothing return
// domain.ErrIncidentNotFound. Mutations on resolved incidents return
// domain.ErrAlreadyResolved.
type IncidentStore interface {
	Create(ctx context.Context, inc domain.Incident) error
	Get(ctx context.Context, id uuid.UUID) (domain.Incident, error)
	FindByCallID(ctx context.Context, callID string) (domain.Incident, error)
	// ListOpenBySubject returns unresolved incidents, newest first.
	ListOpenBySubject(ctx context.Context, subjectID string) ([]domain.Incident, error)
	LastResolvedBySubject(ctx context.Context, subjectID string) (domain.Incident, error)
	// NewestUnplaced returns the newest initiated incident that expects a call
	// but has no call id yet, created after since.
	NewestUnplaced(ctx context.Context, since time.Time) (domain.Incident, error)
	// ListStale returns initiated incidents created before cutoff, oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Incident, error)
	// AttachCallID sets the provider call id. With onlyIfUnset it succeeds
	// only when no id is stored yet. It reports whether a row changed.
	AttachCallID(ctx context.Context, id uuid.UUID, callID string, onlyIfUnset bool) (bool, error)
	// Apply persists u unless the incident is resolved and returns the result.
	Apply(ctx context.Context, id uuid.UUID, u domain.Update) (domain.Incident, error)
}

// SubjectDirectory resolves member profiles. FindByEmail and FindByID return
// domain.ErrSubjectNotFound for unknown members; RelayNumber returns "" when
// no relay number is assigned.
type SubjectDirectory interface {
	FindByEmail(ctx context.Context, email string) (domain.Subject, error)
	FindByID(ctx context.Context, subjectID string) (domain.Subject, error)
	RelayNumber(ctx context.Context, email string) (string, error)
}

// CallPlacer is the provider's call-control surface.
type CallPlacer interface {
	PlaceCall(ctx context.Context, to, markupURL string) (telephony.PlacedCall, error)
	EndCall(ctx context.Context, callID string) error
}

// Locker is a non-blocking TTL lock.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) bool
}

// RateLimiter counts events per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
