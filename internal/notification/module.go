// Package notification alerts the on-call team about hotline incidents.
// It subscribes to incident events and fans each one out to every
// configured channel: a Discord webhook and an on-call email inbox.
package notification

import (
	"context"
	"net/url"
	"strings"
	"time"

	"hotline_backend/internal/email"
	"hotline_backend/internal/events"
	"hotline_backend/internal/presence"
	"hotline_backend/platform/config"
	"hotline_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

const (
	channelDiscord = "discord"
	channelEmail   = "email"
)

// Module handles incident events and dispatches on-call alerts.
type Module struct {
	discord *DiscordClient
	mailer  email.Sender
	onCall  string
	baseURL string
	now     func() time.Time
	log     *logger.Logger
}

// New creates the notification module. Channels without configuration are
// skipped silently.
func New(cfg config.NotificationConfig, mailer email.Sender, log *logger.Logger) *Module {
	if mailer == nil {
		mailer = email.NoopSender{}
	}
	return &Module{
		discord: NewDiscordClient(cfg.GetDiscordWebhookURL(), log),
		mailer:  mailer,
		onCall:  strings.TrimSpace(cfg.GetOnCallEmail()),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.GetPublicBaseURL()), "/"),
		now:     time.Now,
		log:     log,
	}
}

// RegisterHandlers subscribes the module to the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.IncidentActivated{}.EventName(), m)
	bus.Subscribe(events.IncidentResolved{}.EventName(), m)

	m.log.Info("notification module registered event handlers",
		"discord", m.discord != nil,
		"email", m.onCall != "",
	)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.IncidentActivated:
		return m.handleIncidentActivated(ctx, e)
	case events.IncidentResolved:
		return m.handleIncidentResolved(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleIncidentActivated(ctx context.Context, e events.IncidentActivated) error {
	at := m.now()
	partners := presence.Rotation(e.Region, at)
	viewURL := m.viewURL(e.IncidentID.String())

	return m.fanOut(ctx, e.IncidentID.String(),
		func(ctx context.Context) error {
			return m.discord.send(ctx, activatedPayload(e, partners, viewURL, at))
		},
		func(ctx context.Context) error {
			lines := make([]email.PartnerLine, 0, len(partners))
			for _, p := range partners {
				lines = append(lines, email.PartnerLine{Category: p.Category, Name: p.Name, Status: string(p.Status)})
			}
			return m.mailer.SendIncidentOpenedEmail(ctx, m.onCall, email.IncidentOpened{
				IncidentID: e.IncidentID.String(),
				SubjectID:  e.SubjectID,
				Tier:       e.Tier,
				Region:     e.Region,
				CallPlaced: e.CallPlaced,
				ViewURL:    viewURL,
				OpenedAt:   e.OccurredAt(),
				Partners:   lines,
			})
		},
	)
}

func (m *Module) handleIncidentResolved(ctx context.Context, e events.IncidentResolved) error {
	viewURL := m.viewURL(e.IncidentID.String())

	return m.fanOut(ctx, e.IncidentID.String(),
		func(ctx context.Context) error {
			return m.discord.send(ctx, resolvedPayload(e, viewURL, m.now()))
		},
		func(ctx context.Context) error {
			return m.mailer.SendIncidentResolvedEmail(ctx, m.onCall, email.IncidentResolved{
				IncidentID: e.IncidentID.String(),
				SubjectID:  e.SubjectID,
				Status:     e.Status,
				Reason:     e.Reason,
				Duration:   formatDuration(e.DurationSeconds),
				ViewURL:    viewURL,
				FollowUp:   isFollowUp(e.Status),
				ResolvedAt: e.ResolvedAt,
			})
		},
	)
}

// fanOut runs the discord and email senders concurrently. A failing channel
// never cancels the other one.
func (m *Module) fanOut(ctx context.Context, incidentID string, toDiscord, toEmail func(context.Context) error) error {
	var g errgroup.Group

	if m.discord != nil {
		g.Go(func() error {
			return m.deliver(ctx, channelDiscord, incidentID, toDiscord)
		})
	}
	if m.onCall != "" {
		g.Go(func() error {
			return m.deliver(ctx, channelEmail, incidentID, toEmail)
		})
	}

	return g.Wait()
}

func (m *Module) deliver(ctx context.Context, channel, incidentID string, send func(context.Context) error) error {
	if err := send(ctx); err != nil {
		m.log.EventWarn("notify_error", "channel", channel, "incidentId", incidentID, "error", err.Error())
		return err
	}
	m.log.Event("notify_sent", "channel", channel, "incidentId", incidentID)
	return nil
}

func (m *Module) viewURL(incidentID string) string {
	if m.baseURL == "" {
		return ""
	}
	return m.baseURL + "/status/" + url.PathEscape(incidentID)
}
