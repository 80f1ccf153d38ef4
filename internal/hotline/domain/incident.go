// Package domain holds the incident model and its state machine. It has no
// I/O; services load incidents, ask the domain what changes, and persist the
// resulting Update.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle status of an incident.
type Status string

const (
	StatusInitiated       Status = "initiated"
	StatusActive          Status = "active"
	StatusResolved        Status = "resolved"
	StatusAbandoned       Status = "abandoned"
	StatusMissed          Status = "missed"
	StatusPendingFollowup Status = "pending_followup"
)

// IsTerminal reports whether s ends the lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusResolved, StatusAbandoned, StatusMissed, StatusPendingFollowup:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusInitiated || s == StatusActive || s.IsTerminal()
}

// Reasons recorded for terminal transitions not driven by a provider status.
const (
	ReasonManual               = "manual"
	ReasonTimeout              = "timeout"
	ReasonCallInitiationFailed = "call_initiation_failed"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrSubjectNotFound  = errors.New("subject not found")
	// ErrAlreadyResolved is returned when a mutation targets an incident whose
	// resolution timestamp is already set.
	ErrAlreadyResolved = errors.New("incident already resolved")
	// ErrNoTransition is returned for provider statuses outside the mapping.
	ErrNoTransition = errors.New("no transition for provider status")
)

// Incident is one crisis-call lifecycle.
type Incident struct {
	ID              uuid.UUID
	SubjectID       string
	ProviderCallID  string
	Status          Status
	ProviderStatus  string
	StatusReason    string
	Tier            string
	Region          string
	OperatorID      *string
	OperatorPhone   *string
	CallPlaced      bool
	Persisted       bool
	DurationSeconds *int
	CreatedAt       time.Time
	ActivatedAt     *time.Time
	ResolvedAt      *time.Time
}

// IsResolved reports whether the write-once resolution has happened.
func (i Incident) IsResolved() bool {
	return i.ResolvedAt != nil
}

// HasOperator reports whether a human operator was ever attached.
func (i Incident) HasOperator() bool {
	return i.OperatorID != nil && strings.TrimSpace(*i.OperatorID) != ""
}

// IsStale reports whether an incident never heard from the provider and has
// been waiting longer than after.
func (i Incident) IsStale(now time.Time, after time.Duration) bool {
	return !i.IsResolved() && i.Status == StatusInitiated && now.Sub(i.CreatedAt) > after
}

// IsLive reports whether the call is in progress. The provider status wins
// when one has been recorded; otherwise the lifecycle status decides.
func (i Incident) IsLive() bool {
	if i.IsResolved() {
		return false
	}
	if i.ProviderStatus != "" {
		return MapProviderStatus(i.ProviderStatus).Kind == TransitionActivate
	}
	return i.Status == StatusActive
}

// UpdateKind distinguishes non-terminal from terminal updates.
type UpdateKind int

const (
	UpdateActivate UpdateKind = iota + 1
	UpdateResolve
)

// Update is a mutation for the store to apply conditionally on the incident
// not being resolved yet.
type Update struct {
	Kind            UpdateKind
	Status          Status
	ProviderStatus  string
	Reason          string
	DurationSeconds *int
	At              time.Time
}

// Apply returns the incident with u applied, mirroring what the store does.
func (i Incident) Apply(u Update) (Incident, error) {
	if i.IsResolved() {
		return i, ErrAlreadyResolved
	}
	out := i
	if u.ProviderStatus != "" {
		out.ProviderStatus = u.ProviderStatus
	}
	if u.DurationSeconds != nil {
		d := *u.DurationSeconds
		out.DurationSeconds = &d
	}

	switch u.Kind {
	case UpdateActivate:
		out.Status = StatusActive
		if out.ActivatedAt == nil {
			at := u.At
			out.ActivatedAt = &at
		}
	case UpdateResolve:
		out.Status = u.Status
		out.StatusReason = u.Reason
		at := u.At
		out.ResolvedAt = &at
	}
	return out, nil
}
