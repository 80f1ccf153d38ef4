// Package service implements the hotline use cases: activation, callback
// reconciliation, bridge markup, session polling, manual end-session and
// stale-session reaping.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/hotline/policy"
	"hotline_backend/internal/hotline/ports"
	"hotline_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultStaleAfter     = 30 * time.Minute
	defaultBackfillWindow = 5 * time.Minute
	defaultBridgeLockTTL  = 120 * time.Second
	reapBatchSize         = 100
)

// Options carries configuration the services read.
type Options struct {
	// PublicBaseURL is the externally reachable base of this API.
	PublicBaseURL string
	// CallerID is the number bridges are placed from.
	CallerID string
	// OperatorNumber is the fallback operator when an incident has none.
	OperatorNumber   string
	Production       bool
	DevBypass        bool
	DevIdentityEmail string
	DevCallerE164    string
	PhoneRegion      string
	StaleAfter       time.Duration
	BackfillWindow   time.Duration
	BridgeLockTTL    time.Duration
}

// Deps are the collaborators of Service.
type Deps struct {
	Incidents ports.IncidentStore
	Subjects  ports.SubjectDirectory
	Calls     ports.CallPlacer
	Locks     ports.Locker
	Limiter   ports.RateLimiter
	Events    events.Publisher
	Policy    policy.Policy
	Log       *logger.Logger
}

// Service provides business logic for the hotline.
type Service struct {
	incidents ports.IncidentStore
	subjects  ports.SubjectDirectory
	calls     ports.CallPlacer
	locks     ports.Locker
	limiter   ports.RateLimiter
	events    events.Publisher
	policy    policy.Policy
	opts      Options
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new hotline service.
func New(deps Deps, opts Options) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.BackfillWindow <= 0 {
		opts.BackfillWindow = defaultBackfillWindow
	}
	if opts.BridgeLockTTL <= 0 {
		opts.BridgeLockTTL = defaultBridgeLockTTL
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")

	return &Service{
		incidents: deps.Incidents,
		subjects:  deps.Subjects,
		calls:     deps.Calls,
		locks:     deps.Locks,
		limiter:   deps.Limiter,
		events:    deps.Events,
		policy:    deps.Policy,
		opts:      opts,
		log:       deps.Log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Caller is the identity the auth middleware resolved for a request.
type Caller struct {
	SubjectID string
	Email     string
}

// identify returns the normalized email for caller. bypass reports that the
// dev identity was substituted for a missing one.
func (s *Service) identify(ctx context.Context, caller Caller) (string, bool, error) {
	email := strings.ToLower(strings.TrimSpace(caller.Email))
	if email != "" || caller.SubjectID != "" {
		return email, false, nil
	}
	if !s.opts.DevBypass {
		return "", false, errUnauthenticated
	}
	email = strings.ToLower(strings.TrimSpace(s.opts.DevIdentityEmail))
	s.log.WithContext(ctx).EventWarn("auth_dev_bypass", slog.String("email", email))
	return email, true, nil
}

// lookupSubject loads the member behind an identified caller, by email when
// the token carries one and by subject id otherwise. In bypass the synthetic
// dev subject stands in for a missing profile.
func (s *Service) lookupSubject(ctx context.Context, email string, caller Caller, bypass bool) (domain.Subject, error) {
	if email == "" {
		return s.subjects.FindByID(ctx, caller.SubjectID)
	}

	subject, err := s.subjects.FindByEmail(ctx, email)
	if err == nil {
		return subject, nil
	}
	if bypass {
		s.log.WithContext(ctx).EventWarn("dev_subject_substituted", slog.String("error", err.Error()))
		return domain.DevSubject(email), nil
	}
	return domain.Subject{}, err
}

func (s *Service) resolveCaller(ctx context.Context, caller Caller) (domain.Subject, bool, error) {
	email, bypass, err := s.identify(ctx, caller)
	if err != nil {
		return domain.Subject{}, false, err
	}
	subject, err := s.lookupSubject(ctx, email, caller, bypass)
	return subject, bypass, err
}

// resolve applies a terminal update unless another writer got there first.
// It reports whether this call performed the resolution.
func (s *Service) resolve(ctx context.Context, inc domain.Incident, status domain.Status, reason string) (domain.Incident, bool, error) {
	u, err := inc.UpdateForResolution(status, reason, s.now())
	if errors.Is(err, domain.ErrAlreadyResolved) {
		return inc, false, nil
	}
	if err != nil {
		return inc, false, err
	}
	return s.apply(ctx, inc, u)
}

// apply persists u conditionally. Losing the write-once race is not an error.
func (s *Service) apply(ctx context.Context, inc domain.Incident, u domain.Update) (domain.Incident, bool, error) {
	updated, err := s.incidents.Apply(ctx, inc.ID, u)
	if errors.Is(err, domain.ErrAlreadyResolved) {
		s.log.WithContext(ctx).Debug("incident already resolved", slog.String("incident_id", inc.ID.String()))
		return inc, false, nil
	}
	if err != nil {
		return inc, false, err
	}
	if u.Kind == domain.UpdateResolve {
		s.publishResolved(ctx, updated)
	}
	return updated, true, nil
}

func (s *Service) publishResolved(ctx context.Context, inc domain.Incident) {
	resolvedAt := s.now()
	if inc.ResolvedAt != nil {
		resolvedAt = *inc.ResolvedAt
	}
	s.log.WithContext(ctx).Event("incident_resolved",
		slog.String("incident_id", inc.ID.String()),
		slog.String("status", string(inc.Status)),
		slog.String("reason", inc.StatusReason),
	)
	s.events.Publish(ctx, events.IncidentResolved{
		BaseEvent:       events.NewBaseEvent(),
		IncidentID:      inc.ID,
		SubjectID:       inc.SubjectID,
		Status:          string(inc.Status),
		Reason:          inc.StatusReason,
		ProviderStatus:  inc.ProviderStatus,
		DurationSeconds: inc.DurationSeconds,
		Tier:            inc.Tier,
		Region:          inc.Region,
		CreatedAt:       inc.CreatedAt,
		ResolvedAt:      resolvedAt,
	})
}

// GetIncident returns an incident by id.
func (s *Service) GetIncident(ctx context.Context, id uuid.UUID) (domain.Incident, error) {
	inc, err := s.incidents.Get(ctx, id)
	if errors.Is(err, domain.ErrIncidentNotFound) {
		return domain.Incident{}, errIncidentNotFound
	}
	if err != nil {
		return domain.Incident{}, errStoreUnavailable(err)
	}
	return inc, nil
}

// LastResolved returns the caller's most recent terminal incident. The
// boolean is false when there is none.
func (s *Service) LastResolved(ctx context.Context, caller Caller) (domain.Incident, bool, error) {
	subject, _, err := s.resolveCaller(ctx, caller)
	if err != nil {
		return domain.Incident{}, false, s.mapSubjectError(err)
	}
	inc, err := s.incidents.LastResolvedBySubject(ctx, subject.SubjectID)
	if errors.Is(err, domain.ErrIncidentNotFound) {
		return domain.Incident{}, false, nil
	}
	if err != nil {
		return domain.Incident{}, false, errStoreUnavailable(err)
	}
	return inc, true, nil
}
