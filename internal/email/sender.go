// Package email renders and delivers on-call alert emails.
package email

import (
	"context"
	"time"
)

// Sender delivers on-call alerts for incident lifecycle changes.
type Sender interface {
	SendIncidentOpenedEmail(ctx context.Context, toEmail string, data IncidentOpened) error
	SendIncidentResolvedEmail(ctx context.Context, toEmail string, data IncidentResolved) error
}

// IncidentOpened carries the fields shown in the activation alert.
type IncidentOpened struct {
	IncidentID string
	SubjectID  string
	Tier       string
	Region     string
	CallPlaced bool
	ViewURL    string
	OpenedAt   time.Time
	Partners   []PartnerLine
}

// PartnerLine is one row of the on-duty roster.
type PartnerLine struct {
	Category string
	Name     string
	Status   string
}

// IncidentResolved carries the fields shown in the resolution alert.
type IncidentResolved struct {
	IncidentID string
	SubjectID  string
	Status     string
	Reason     string
	Duration   string
	ViewURL    string
	FollowUp   bool
	ResolvedAt time.Time
}

type NoopSender struct{}

func (NoopSender) SendIncidentOpenedEmail(ctx context.Context, toEmail string, data IncidentOpened) error {
	return nil
}

func (NoopSender) SendIncidentResolvedEmail(ctx context.Context, toEmail string, data IncidentResolved) error {
	return nil
}
