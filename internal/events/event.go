// Package events defines the hotline's domain events. Notification and
// metrics subscribe to them; the hotline service publishes them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Hotline Domain Events
// =============================================================================

// IncidentActivated is published once an activation has produced an incident,
// before the bridge call is placed.
type IncidentActivated struct {
	BaseEvent
	IncidentID uuid.UUID `json:"incidentId"`
	SubjectID  string    `json:"subjectId"`
	Tier       string    `json:"tier"`
	Region     string    `json:"region"`
	CallPlaced bool      `json:"callPlaced"`
	Persisted  bool      `json:"persisted"`
	Bypass     bool      `json:"bypass"`
}

func (e IncidentActivated) EventName() string { return "hotline.incident.activated" }

// IncidentResolved is published after every terminal transition that won the
// write-once race, whichever path produced it.
type IncidentResolved struct {
	BaseEvent
	IncidentID      uuid.UUID `json:"incidentId"`
	SubjectID       string    `json:"subjectId"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	ProviderStatus  string    `json:"providerStatus,omitempty"`
	DurationSeconds *int      `json:"durationSeconds,omitempty"`
	Tier            string    `json:"tier"`
	Region          string    `json:"region"`
	CreatedAt       time.Time `json:"createdAt"`
	ResolvedAt      time.Time `json:"resolvedAt"`
}

func (e IncidentResolved) EventName() string { return "hotline.incident.resolved" }

// CallbackOrphaned is published when a provider callback cannot be matched
// to any incident.
type CallbackOrphaned struct {
	BaseEvent
	CallSid        string `json:"callSid"`
	ParentCallSid  string `json:"parentCallSid,omitempty"`
	DialCallSid    string `json:"dialCallSid,omitempty"`
	ProviderStatus string `json:"providerStatus"`
}

func (e CallbackOrphaned) EventName() string { return "hotline.callback.orphaned" }
