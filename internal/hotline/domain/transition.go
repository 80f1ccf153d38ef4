package domain

import (
	"strings"
	"time"
)

// TransitionKind is the effect of a provider status on an incident.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionActivate
	TransitionTerminal
)

// Transition is the mapped meaning of one provider status.
type Transition struct {
	Kind     TransitionKind
	Terminal Status
	Raw      string
}

// MapProviderStatus maps a provider status, case-insensitively, onto the
// lifecycle. Unknown values map to TransitionNone.
func MapProviderStatus(raw string) Transition {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	t := Transition{Raw: normalized}

	switch normalized {
	case "queued", "initiated", "ringing", "answered", "in-progress":
		t.Kind = TransitionActivate
	case "completed":
		t.Kind, t.Terminal = TransitionTerminal, StatusResolved
	case "busy":
		t.Kind, t.Terminal = TransitionTerminal, StatusMissed
	case "no-answer", "failed", "canceled":
		t.Kind, t.Terminal = TransitionTerminal, StatusAbandoned
	}
	return t
}

// IsEarlyLifecycle reports whether raw is a status sent before a call is
// established. Only these may be correlated by recency.
func IsEarlyLifecycle(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "initiated", "ringing", "answered":
		return true
	default:
		return false
	}
}

// UpdateForCallback builds the update a provider callback causes.
func (i Incident) UpdateForCallback(t Transition, duration *int, now time.Time) (Update, error) {
	if i.IsResolved() {
		return Update{}, ErrAlreadyResolved
	}
	switch t.Kind {
	case TransitionActivate:
		return Update{
			Kind:            UpdateActivate,
			Status:          StatusActive,
			ProviderStatus:  t.Raw,
			DurationSeconds: duration,
			At:              now,
		}, nil
	case TransitionTerminal:
		return Update{
			Kind:            UpdateResolve,
			Status:          t.Terminal,
			ProviderStatus:  t.Raw,
			Reason:          t.Raw,
			DurationSeconds: duration,
			At:              now,
		}, nil
	default:
		return Update{}, ErrNoTransition
	}
}

// UpdateForResolution builds a terminal update not driven by the provider.
func (i Incident) UpdateForResolution(status Status, reason string, now time.Time) (Update, error) {
	if i.IsResolved() {
		return Update{}, ErrAlreadyResolved
	}
	return Update{Kind: UpdateResolve, Status: status, Reason: reason, At: now}, nil
}

// ManualResolutionStatus is the terminal status for an operator or member
// ending the session by hand. Without an operator on record the incident
// still needs a human follow-up.
func (i Incident) ManualResolutionStatus() Status {
	if i.HasOperator() {
		return StatusResolved
	}
	return StatusPendingFollowup
}
