package service

import (
	"context"
	"errors"
	"log/slog"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/lock"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/phone"

	"github.com/google/uuid"
)

// ActivationResult is returned to the member's client.
type ActivationResult struct {
	IncidentID     uuid.UUID
	ProviderCallID string
	CallPlaced     bool
	Persisted      bool
}

// destination is the resolved number to dial. An empty number with noCall
// set means the tier may activate without a call.
type destination struct {
	number string
	source string
	noCall bool
}

// Activate starts a crisis call for the caller.
func (s *Service) Activate(ctx context.Context, caller Caller) (ActivationResult, error) {
	log := s.log.WithContext(ctx)

	email, bypass, err := s.identify(ctx, caller)
	if err != nil {
		return ActivationResult{}, err
	}

	limitKey := lock.Key("activate", firstNonEmpty(email, caller.SubjectID))
	allowed, err := s.limiter.Allow(ctx, limitKey)
	if err == nil && !allowed {
		log.RateLimitExceeded(limitKey, "hotline.activate")
		return ActivationResult{}, errRateLimited
	}

	subject, err := s.lookupSubject(ctx, email, caller, bypass)
	if err != nil {
		return ActivationResult{}, s.mapSubjectError(err)
	}

	bypassPosture := bypass || subject.Bypass
	dest, err := s.resolveDestination(ctx, subject, bypassPosture)
	if err != nil {
		return ActivationResult{}, err
	}

	inc := domain.Incident{
		ID:         uuid.New(),
		SubjectID:  subject.SubjectID,
		Status:     domain.StatusInitiated,
		Tier:       subject.Tier,
		Region:     subject.Region,
		CallPlaced: !dest.noCall,
		Persisted:  true,
		CreatedAt:  s.now(),
	}
	if err := s.incidents.Create(ctx, inc); err != nil {
		if !bypassPosture {
			log.DatabaseError("create_incident", err)
			return ActivationResult{}, errStoreUnavailable(err)
		}
		inc.Persisted = false
		log.EventWarn("incident_not_persisted",
			slog.String("incident_id", inc.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	log.Event("hotline_activated",
		slog.String("incident_id", inc.ID.String()),
		slog.String("subject_id", inc.SubjectID),
		slog.String("tier", inc.Tier),
		slog.String("destination_source", dest.source),
		slog.Bool("persisted", inc.Persisted),
		slog.Bool("bypass", bypassPosture),
	)
	s.events.Publish(ctx, events.IncidentActivated{
		BaseEvent:  events.NewBaseEvent(),
		IncidentID: inc.ID,
		SubjectID:  inc.SubjectID,
		Tier:       inc.Tier,
		Region:     inc.Region,
		CallPlaced: inc.CallPlaced,
		Persisted:  inc.Persisted,
		Bypass:     bypassPosture,
	})

	result := ActivationResult{IncidentID: inc.ID, CallPlaced: inc.CallPlaced, Persisted: inc.Persisted}
	if dest.noCall {
		return result, nil
	}

	placed, err := s.calls.PlaceCall(ctx, dest.number, s.opts.PublicBaseURL+telephony.MarkupPath)
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, telephony.ErrInvalidNumber) {
			reason = "invalid_destination"
		} else if errors.Is(err, telephony.ErrNotConfigured) {
			reason = "provider_not_configured"
		}
		log.EventError("call_initiation_failed",
			slog.String("incident_id", inc.ID.String()),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		if inc.Persisted {
			if _, _, rerr := s.resolve(ctx, inc, domain.StatusAbandoned, domain.ReasonCallInitiationFailed); rerr != nil {
				log.DatabaseError("abandon_incident", rerr)
			}
		}
		return ActivationResult{}, errCallInitiationFailed(err, reason)
	}

	result.ProviderCallID = placed.CallID
	if inc.Persisted {
		if _, err := s.incidents.AttachCallID(ctx, inc.ID, placed.CallID, false); err != nil {
			log.DatabaseError("attach_call_id", err)
		}
	}

	log.Event("call_placed",
		slog.String("incident_id", inc.ID.String()),
		slog.String("call_sid", placed.CallID),
		slog.String("to", phone.Mask(dest.number)),
	)
	return result, nil
}

// resolveDestination walks the number precedence: the member's verified
// number, a relay number assigned to their email, the development fallback,
// then a no-call activation if the tier policy allows it.
func (s *Service) resolveDestination(ctx context.Context, subject domain.Subject, bypassPosture bool) (destination, error) {
	if number, err := phone.ParseE164(subject.VerifiedPhone, s.opts.PhoneRegion); err == nil {
		return destination{number: number, source: "verified"}, nil
	}

	if subject.Email != "" {
		relay, err := s.subjects.RelayNumber(ctx, subject.Email)
		if err != nil {
			s.log.WithContext(ctx).EventWarn("relay_lookup_failed", slog.String("error", err.Error()))
		} else if number, err := phone.ParseE164(relay, s.opts.PhoneRegion); err == nil {
			return destination{number: number, source: "relay"}, nil
		}
	}

	tier := s.policy.For(subject.Tier)
	if s.opts.DevCallerE164 != "" && (bypassPosture || (!s.opts.Production && tier.AllowDevFallback)) {
		if number, err := phone.ParseE164(s.opts.DevCallerE164, s.opts.PhoneRegion); err == nil {
			return destination{number: number, source: "dev_fallback"}, nil
		}
	}

	if tier.AllowNoCall {
		return destination{source: "none", noCall: true}, nil
	}
	return destination{}, errPhoneNotConfigured()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
