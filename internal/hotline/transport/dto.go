package transport

import (
	"time"

	"hotline_backend/internal/presence"

	"github.com/google/uuid"
)

// ActivateResponse is returned when a crisis call is started.
type ActivateResponse struct {
	IncidentID     uuid.UUID `json:"incidentId"`
	ProviderCallID *string   `json:"providerCallId"`
	CallPlaced     bool      `json:"callPlaced"`
	Persisted      bool      `json:"persisted"`
}

// CallStatusRequest is the subset of provider callback fields the reconciler
// reads. The provider posts form-encoded bodies; JSON is accepted as well.
type CallStatusRequest struct {
	CallSid          string `form:"CallSid" json:"CallSid" validate:"omitempty,callsid"`
	ParentCallSid    string `form:"ParentCallSid" json:"ParentCallSid" validate:"omitempty,callsid"`
	DialCallSid      string `form:"DialCallSid" json:"DialCallSid" validate:"omitempty,callsid"`
	CallStatus       string `form:"CallStatus" json:"CallStatus"`
	DialCallStatus   string `form:"DialCallStatus" json:"DialCallStatus"`
	CallDuration     string `form:"CallDuration" json:"CallDuration"`
	DialCallDuration string `form:"DialCallDuration" json:"DialCallDuration"`
}

// CallStatusResponse acknowledges every callback.
type CallStatusResponse struct {
	OK bool `json:"ok"`
}

// EndSessionRequest names the incident to end.
type EndSessionRequest struct {
	IncidentID *uuid.UUID `json:"incidentId,omitempty"`
	CallSid    string     `json:"callSid,omitempty" validate:"omitempty,callsid"`
}

// EndSessionResponse confirms an ended session.
type EndSessionResponse struct {
	Success bool `json:"success"`
}

// ActiveSessionResponse is the polling view of the caller's session.
type ActiveSessionResponse struct {
	Active          bool       `json:"active"`
	Status          string     `json:"status"`
	IncidentID      *uuid.UUID `json:"incidentId,omitempty"`
	CallSid         string     `json:"callSid,omitempty"`
	ProviderStatus  string     `json:"providerStatus,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	ActivatedAt     *time.Time `json:"activatedAt,omitempty"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
	DurationSeconds *int       `json:"durationSeconds,omitempty"`
}

// LastIncidentResponse summarises the caller's most recent resolved incident.
type LastIncidentResponse struct {
	ID         uuid.UUID  `json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	OperatorID *string    `json:"operatorId"`
}

// IncidentStatusResponse is the public status view of an incident. It
// carries no contact details.
type IncidentStatusResponse struct {
	ID              uuid.UUID  `json:"id"`
	SubjectID       string     `json:"subjectId"`
	Status          string     `json:"status"`
	ProviderStatus  string     `json:"providerStatus"`
	CreatedAt       time.Time  `json:"createdAt"`
	ResolvedAt      *time.Time `json:"resolvedAt"`
	DurationSeconds *int       `json:"durationSeconds"`
	CallSid         string     `json:"callSid"`
}

// PresenceResponse lists partner availability.
type PresenceResponse struct {
	Partners []presence.Partner `json:"partners"`
}
