package service

import (
	"context"
	"testing"
	"time"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/apperr"
)

func TestActivateHappyPath(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Activate(context.Background(), member())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProviderCallID != "CA123" || !res.CallPlaced || !res.Persisted {
		t.Fatalf("unexpected result %+v", res)
	}

	inc := h.store.get(res.IncidentID)
	if inc.Status != domain.StatusInitiated || inc.ProviderCallID != "CA123" || inc.SubjectID != memberSubject {
		t.Fatalf("unexpected incident %+v", inc)
	}
	if inc.Tier != "Silver" || inc.Region != "NYC" {
		t.Fatalf("expected tier and region copied from subject, got %+v", inc)
	}
	if len(h.calls.placed) != 1 || h.calls.placed[0] != memberPhone {
		t.Fatalf("expected call to verified number, got %v", h.calls.placed)
	}
	if got := len(h.published.named(events.IncidentActivated{}.EventName())); got != 1 {
		t.Fatalf("expected one activation event, got %d", got)
	}
}

func TestActivateUnauthenticated(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Activate(context.Background(), Caller{})
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestActivateDevBypassUsesSyntheticSubject(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Production = false
		o.DevBypass = true
		o.DevIdentityEmail = "dev@hotline.local"
		o.DevCallerE164 = "+14155552674"
	})

	res, err := h.svc.Activate(context.Background(), Caller{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inc := h.store.get(res.IncidentID)
	if inc.SubjectID != domain.DevSubjectID || inc.Tier != "Gold" || inc.Region != "LA" {
		t.Fatalf("unexpected dev incident %+v", inc)
	}
	if h.calls.placed[0] != "+14155552674" {
		t.Fatalf("expected dev fallback number, got %v", h.calls.placed)
	}
}

func TestActivateRateLimitBoundary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := h.svc.Activate(ctx, member()); err != nil {
			t.Fatalf("activation %d: unexpected error %v", i, err)
		}
	}

	_, err := h.svc.Activate(ctx, member())
	if !apperr.Is(err, apperr.KindRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if len(h.calls.placed) != 4 {
		t.Fatalf("expected limited activation not to dial, got %d calls", len(h.calls.placed))
	}

	h.clock.Advance(time.Minute)
	if _, err := h.svc.Activate(ctx, member()); err != nil {
		t.Fatalf("expected activation after window, got %v", err)
	}
}

func TestActivateUnknownSubject(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Activate(context.Background(), Caller{Email: "nobody@example.com"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActivateUnknownSubjectWithoutEmail(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Activate(context.Background(), Caller{SubjectID: "WOLF-UNKNOWN"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(h.calls.placed) != 0 {
		t.Fatalf("expected no call for an unknown member, got %v", h.calls.placed)
	}
}

func TestActivateResolvesSubjectByIDWithoutEmail(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Activate(context.Background(), Caller{SubjectID: memberSubject})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.CallPlaced || len(h.calls.placed) != 1 || h.calls.placed[0] != memberPhone {
		t.Fatalf("expected call to the member's verified number, got %+v %v", res, h.calls.placed)
	}
}

func TestActivateFallsBackToRelayNumber(t *testing.T) {
	h := newHarness(t)
	s := h.directory.subjects[memberEmail]
	s.VerifiedPhone = ""
	h.directory.subjects[memberEmail] = s
	h.directory.relays[memberEmail] = "(415) 555-2673"

	if _, err := h.svc.Activate(context.Background(), member()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.calls.placed[0] != "+14155552673" {
		t.Fatalf("expected normalized relay number, got %v", h.calls.placed)
	}
}

func TestActivatePhoneNotConfigured(t *testing.T) {
	h := newHarness(t)
	s := h.directory.subjects[memberEmail]
	s.VerifiedPhone = ""
	h.directory.subjects[memberEmail] = s

	_, err := h.svc.Activate(context.Background(), member())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var e *apperr.Error
	if !asAppErr(err, &e) || e.Op != CodePhoneNotConfigured {
		t.Fatalf("expected %s code, got %v", CodePhoneNotConfigured, err)
	}
	if len(h.store.incidents) != 0 {
		t.Fatal("expected no incident to be created")
	}
}

func TestActivateNoCallTier(t *testing.T) {
	h := newHarness(t)
	s := h.directory.subjects[memberEmail]
	s.VerifiedPhone = ""
	s.Tier = "Gold"
	h.directory.subjects[memberEmail] = s

	res, err := h.svc.Activate(context.Background(), member())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CallPlaced || res.ProviderCallID != "" {
		t.Fatalf("expected no-call activation, got %+v", res)
	}
	if len(h.calls.placed) != 0 {
		t.Fatal("expected no call to be placed")
	}
	if inc := h.store.get(res.IncidentID); inc.CallPlaced {
		t.Fatal("expected incident flagged as no-call")
	}
}

func TestActivateDevFallbackNotUsedInProduction(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.DevCallerE164 = "+14155552674" })
	s := h.directory.subjects[memberEmail]
	s.VerifiedPhone = ""
	h.directory.subjects[memberEmail] = s

	_, err := h.svc.Activate(context.Background(), member())
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected phone not configured in production, got %v", err)
	}
}

func TestActivateStoreFailureIsFatalOutsideBypass(t *testing.T) {
	h := newHarness(t)
	h.store.createErr = errBoom

	_, err := h.svc.Activate(context.Background(), member())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if len(h.calls.placed) != 0 {
		t.Fatal("expected no call when the incident could not be stored")
	}
}

func TestActivateStoreFailureContinuesForBypassSubject(t *testing.T) {
	h := newHarness(t)
	s := h.directory.subjects[memberEmail]
	s.Bypass = true
	h.directory.subjects[memberEmail] = s
	h.store.createErr = errBoom

	res, err := h.svc.Activate(context.Background(), member())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Persisted || res.ProviderCallID != "CA123" {
		t.Fatalf("expected non-persisted placed call, got %+v", res)
	}
}

func TestActivateCallFailureAbandonsIncident(t *testing.T) {
	h := newHarness(t)
	h.calls.placeErr = &telephony.APIError{StatusCode: 503}

	_, err := h.svc.Activate(context.Background(), member())
	if !apperr.Is(err, apperr.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	open, _ := h.store.ListOpenBySubject(context.Background(), memberSubject)
	if len(open) != 0 {
		t.Fatalf("expected no open incidents, got %d", len(open))
	}
	last, err := h.store.LastResolvedBySubject(context.Background(), memberSubject)
	if err != nil {
		t.Fatalf("expected resolved incident: %v", err)
	}
	if last.Status != domain.StatusAbandoned || last.StatusReason != domain.ReasonCallInitiationFailed {
		t.Fatalf("unexpected incident %+v", last)
	}
	if got := len(h.published.named(events.IncidentResolved{}.EventName())); got != 1 {
		t.Fatalf("expected one resolved event, got %d", got)
	}
}
