package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/lock"
)

// Callback is a delivery-status callback from the provider.
type Callback struct {
	CallSid          string
	ParentCallSid    string
	DialCallSid      string
	CallStatus       string
	DialCallStatus   string
	CallDuration     string
	DialCallDuration string
}

// Status prefers CallStatus and falls back to DialCallStatus.
func (c Callback) Status() string {
	if s := strings.TrimSpace(c.CallStatus); s != "" {
		return s
	}
	return strings.TrimSpace(c.DialCallStatus)
}

// Duration returns the reported call duration in seconds, if any.
func (c Callback) Duration() *int {
	for _, raw := range []string{c.CallDuration, c.DialCallDuration} {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 0 {
			return &n
		}
	}
	return nil
}

// Outcome is what a callback did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmapped  Outcome = "unmapped"
	OutcomeOrphan    Outcome = "orphan"
)

// Correlation names the rule that matched a callback to an incident.
type Correlation string

const (
	MatchCallSid  Correlation = "call_sid"
	MatchParent   Correlation = "parent_call_sid"
	MatchDial     Correlation = "dial_call_sid"
	MatchBackfill Correlation = "backfill"
)

// ReconcileResult reports how a callback was handled.
type ReconcileResult struct {
	Outcome    Outcome
	Match      Correlation
	IncidentID string
	Status     domain.Status
}

// Reconcile folds one provider callback into the matching incident. Callers
// must answer the provider with success whatever the result; the returned
// error is for logging only.
func (s *Service) Reconcile(ctx context.Context, cb Callback) (ReconcileResult, error) {
	log := s.log.WithContext(ctx)
	raw := cb.Status()
	transition := domain.MapProviderStatus(raw)

	inc, match, err := s.correlate(ctx, cb, raw)
	if err != nil {
		log.DatabaseError("correlate_callback", err)
		return ReconcileResult{}, err
	}
	if match == "" {
		log.EventWarn("call_status_orphan",
			slog.String("call_sid", cb.CallSid),
			slog.String("parent_call_sid", cb.ParentCallSid),
			slog.String("dial_call_sid", cb.DialCallSid),
			slog.String("status", raw),
		)
		s.events.Publish(ctx, events.CallbackOrphaned{
			BaseEvent:      events.NewBaseEvent(),
			CallSid:        cb.CallSid,
			ParentCallSid:  cb.ParentCallSid,
			DialCallSid:    cb.DialCallSid,
			ProviderStatus: transition.Raw,
		})
		return ReconcileResult{Outcome: OutcomeOrphan}, nil
	}

	result := ReconcileResult{Match: match, IncidentID: inc.ID.String(), Status: inc.Status}
	attrs := []any{
		slog.String("incident_id", inc.ID.String()),
		slog.String("call_sid", cb.CallSid),
		slog.String("status", raw),
		slog.String("match", string(match)),
	}

	u, err := inc.UpdateForCallback(transition, cb.Duration(), s.now())
	switch {
	case errors.Is(err, domain.ErrNoTransition):
		log.Event("call_status_unmapped", attrs...)
		result.Outcome = OutcomeUnmapped
		return result, nil
	case errors.Is(err, domain.ErrAlreadyResolved):
		log.Debug("call_status_duplicate", attrs...)
		result.Outcome = OutcomeDuplicate
		return result, nil
	case err != nil:
		return result, err
	}

	updated, applied, err := s.apply(ctx, inc, u)
	if err != nil {
		log.DatabaseError("apply_callback", err)
		return result, err
	}
	if !applied {
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	log.Event("call_status", append(attrs, slog.String("lifecycle", string(updated.Status)))...)
	result.Outcome = OutcomeApplied
	result.Status = updated.Status
	return result, nil
}

// correlate finds the incident a callback belongs to. An empty Correlation
// with a nil error means the callback is an orphan.
func (s *Service) correlate(ctx context.Context, cb Callback, raw string) (domain.Incident, Correlation, error) {
	candidates := []struct {
		id    string
		match Correlation
	}{
		{cb.CallSid, MatchCallSid},
		{cb.ParentCallSid, MatchParent},
		{cb.DialCallSid, MatchDial},
	}

	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		id := strings.TrimSpace(c.id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		inc, err := s.incidents.FindByCallID(ctx, id)
		if err == nil {
			return inc, c.match, nil
		}
		if !errors.Is(err, domain.ErrIncidentNotFound) {
			return domain.Incident{}, "", err
		}
	}

	if cb.CallSid == "" || !domain.IsEarlyLifecycle(raw) {
		return domain.Incident{}, "", nil
	}
	return s.backfill(ctx, cb.CallSid)
}

// backfill attaches callSid to the newest unplaced incident inside the
// lookback window. The first callback to take the per-incident lock wins;
// later ones re-read by call id.
func (s *Service) backfill(ctx context.Context, callSid string) (domain.Incident, Correlation, error) {
	inc, err := s.incidents.NewestUnplaced(ctx, s.now().Add(-s.opts.BackfillWindow))
	if errors.Is(err, domain.ErrIncidentNotFound) {
		return domain.Incident{}, "", nil
	}
	if err != nil {
		return domain.Incident{}, "", err
	}

	if s.locks.TryAcquire(ctx, lock.Key("backfill", inc.ID.String()), s.opts.BackfillWindow) {
		attached, err := s.incidents.AttachCallID(ctx, inc.ID, callSid, true)
		if err != nil {
			return domain.Incident{}, "", err
		}
		if attached {
			inc.ProviderCallID = callSid
			s.log.WithContext(ctx).Event("call_sid_backfilled",
				slog.String("incident_id", inc.ID.String()),
				slog.String("call_sid", callSid),
			)
			return inc, MatchBackfill, nil
		}
	}

	inc, err = s.incidents.FindByCallID(ctx, callSid)
	if errors.Is(err, domain.ErrIncidentNotFound) {
		return domain.Incident{}, "", nil
	}
	if err != nil {
		return domain.Incident{}, "", err
	}
	return inc, MatchCallSid, nil
}
