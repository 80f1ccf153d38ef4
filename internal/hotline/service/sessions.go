package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"hotline_backend/internal/hotline/domain"

	"github.com/google/uuid"
)

// Session statuses reported in addition to lifecycle statuses.
const (
	SessionStatusIdle       = "idle"
	SessionStatusConnecting = "connecting"
)

// SessionSnapshot is what a polling client sees.
type SessionSnapshot struct {
	Active          bool
	Status          string
	IncidentID      *uuid.UUID
	ProviderCallID  string
	ProviderStatus  string
	CreatedAt       *time.Time
	ActivatedAt     *time.Time
	ResolvedAt      *time.Time
	DurationSeconds *int
}

// ActiveSession returns the caller's newest open incident. Older open
// incidents are reaped only when they are stale themselves; a call still
// connected is left to its provider callbacks. Any failure degrades to an
// inactive snapshot; it never returns an error.
func (s *Service) ActiveSession(ctx context.Context, caller Caller) SessionSnapshot {
	log := s.log.WithContext(ctx)
	idle := SessionSnapshot{Status: SessionStatusIdle}

	subject, _, err := s.resolveCaller(ctx, caller)
	if err != nil {
		log.EventWarn("active_session_subject_unresolved", slog.String("error", err.Error()))
		return idle
	}

	open, err := s.incidents.ListOpenBySubject(ctx, subject.SubjectID)
	if err != nil {
		log.DatabaseError("list_open_incidents", err)
		return idle
	}
	if len(open) == 0 {
		return idle
	}

	newest := open[0]
	for _, older := range open[1:] {
		if !older.IsStale(s.now(), s.opts.StaleAfter) {
			continue
		}
		if _, reaped, err := s.resolve(ctx, older, domain.StatusAbandoned, domain.ReasonTimeout); err != nil {
			log.DatabaseError("reap_superseded_incident", err)
		} else if reaped {
			log.Event("incident_reaped",
				slog.String("incident_id", older.ID.String()),
				slog.String("cause", "stale_superseded"),
			)
		}
	}

	if newest.IsStale(s.now(), s.opts.StaleAfter) {
		resolved, reaped, err := s.resolve(ctx, newest, domain.StatusAbandoned, domain.ReasonTimeout)
		if err != nil {
			log.DatabaseError("reap_stale_incident", err)
			return idle
		}
		if reaped {
			log.Event("incident_reaped",
				slog.String("incident_id", newest.ID.String()),
				slog.String("cause", "stale"),
			)
		}
		snap := snapshotOf(resolved)
		snap.Active = false
		return snap
	}

	return snapshotOf(newest)
}

func snapshotOf(inc domain.Incident) SessionSnapshot {
	id := inc.ID
	created := inc.CreatedAt
	status := string(inc.Status)
	if inc.Status == domain.StatusInitiated && inc.ProviderStatus == "" {
		status = SessionStatusConnecting
	}
	return SessionSnapshot{
		Active:          inc.IsLive(),
		Status:          status,
		IncidentID:      &id,
		ProviderCallID:  inc.ProviderCallID,
		ProviderStatus:  inc.ProviderStatus,
		CreatedAt:       &created,
		ActivatedAt:     inc.ActivatedAt,
		ResolvedAt:      inc.ResolvedAt,
		DurationSeconds: inc.DurationSeconds,
	}
}

// EndSessionRequest names the incident to end by id or provider call id.
type EndSessionRequest struct {
	IncidentID *uuid.UUID
	CallSid    string
}

// EndSession ends the caller's call and resolves the incident by hand.
// Ending an already resolved incident succeeds without side effects.
func (s *Service) EndSession(ctx context.Context, caller Caller, req EndSessionRequest) error {
	log := s.log.WithContext(ctx)
	callSid := strings.TrimSpace(req.CallSid)
	if req.IncidentID == nil && callSid == "" {
		return errMissingTarget
	}

	subject, _, err := s.resolveCaller(ctx, caller)
	if err != nil {
		return s.mapSubjectError(err)
	}

	var inc domain.Incident
	if req.IncidentID != nil {
		inc, err = s.incidents.Get(ctx, *req.IncidentID)
	} else {
		inc, err = s.incidents.FindByCallID(ctx, callSid)
	}
	if errors.Is(err, domain.ErrIncidentNotFound) {
		return errIncidentNotFound
	}
	if err != nil {
		return errStoreUnavailable(err)
	}
	if inc.SubjectID != subject.SubjectID {
		log.EventWarn("end_session_foreign_incident",
			slog.String("incident_id", inc.ID.String()),
			slog.String("subject_id", subject.SubjectID),
		)
		return errIncidentNotFound
	}
	if inc.IsResolved() {
		return nil
	}

	if inc.ProviderCallID != "" {
		if err := s.calls.EndCall(ctx, inc.ProviderCallID); err != nil {
			log.EventWarn("end_call_failed",
				slog.String("incident_id", inc.ID.String()),
				slog.String("call_sid", inc.ProviderCallID),
				slog.String("error", err.Error()),
			)
		}
	}

	status := inc.ManualResolutionStatus()
	if _, resolved, err := s.resolve(ctx, inc, status, domain.ReasonManual); err != nil {
		return errStoreUnavailable(err)
	} else if resolved {
		log.Event("incident_resolved_manual",
			slog.String("incident_id", inc.ID.String()),
			slog.String("status", string(status)),
		)
	}
	return nil
}

// ReapStale abandons every initiated incident older than the staleness
// threshold and returns how many it resolved.
func (s *Service) ReapStale(ctx context.Context) (int, error) {
	log := s.log.WithContext(ctx)
	cutoff := s.now().Add(-s.opts.StaleAfter)
	reaped := 0

	for {
		stale, err := s.incidents.ListStale(ctx, cutoff, reapBatchSize)
		if err != nil {
			return reaped, err
		}

		batch := 0
		for _, inc := range stale {
			_, ok, err := s.resolve(ctx, inc, domain.StatusAbandoned, domain.ReasonTimeout)
			if err != nil {
				return reaped, err
			}
			if ok {
				batch++
				log.Event("incident_reaped",
					slog.String("incident_id", inc.ID.String()),
					slog.String("cause", "stale"),
				)
			}
		}
		reaped += batch

		if len(stale) < reapBatchSize || batch == 0 {
			return reaped, nil
		}
		if err := ctx.Err(); err != nil {
			return reaped, err
		}
	}
}
