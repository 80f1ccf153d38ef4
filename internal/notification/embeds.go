package notification

import (
	"fmt"
	"strings"
	"time"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/presence"
)

const (
	colorResolved        = 3066993
	colorMissed          = 15158332
	colorAbandoned       = 9807270
	colorPendingFollowup = 15844367
	colorDefault         = 5793266

	titleActivated = "🚨 Hotline Activated"
	titleResolved  = "✅ Incident Update"

	followUpNote = "Member ended the session before an operator joined. Reach out directly."
)

var teamRoles = map[string]string{
	"Legal":    "Counsel",
	"Medical":  "Clinician",
	"PR":       "Comms",
	"Security": "Field",
}

func colorForStatus(status string) int {
	switch domain.Status(strings.ToLower(status)) {
	case domain.StatusResolved:
		return colorResolved
	case domain.StatusMissed:
		return colorMissed
	case domain.StatusAbandoned:
		return colorAbandoned
	case domain.StatusPendingFollowup:
		return colorPendingFollowup
	default:
		return colorDefault
	}
}

func teamSummary(partners []presence.Partner) string {
	parts := make([]string, 0, len(partners))
	for _, p := range partners {
		role, ok := teamRoles[p.Category]
		if !ok {
			role = p.Category
		}
		switch p.Status {
		case presence.StatusActive:
			parts = append(parts, role+": ✅")
		case presence.StatusRotating:
			parts = append(parts, role+": 🔄")
		default:
			parts = append(parts, role+": ⛔️")
		}
	}
	return strings.Join(parts, " · ")
}

func formatDuration(seconds *int) string {
	if seconds == nil {
		return "-"
	}
	return fmt.Sprintf("%ds", *seconds)
}

func subjectFields(subjectID, region, tier string) []discordField {
	fields := []discordField{{Name: "Wolf ID", Value: subjectID, Inline: true}}
	if region != "" {
		fields = append(fields, discordField{Name: "Region", Value: region, Inline: true})
	}
	if tier != "" {
		fields = append(fields, discordField{Name: "Tier", Value: tier, Inline: true})
	}
	return fields
}

func activatedPayload(e events.IncidentActivated, partners []presence.Partner, viewURL string, at time.Time) discordPayload {
	fields := subjectFields(e.SubjectID, e.Region, e.Tier)
	if team := teamSummary(partners); team != "" {
		fields = append(fields, discordField{Name: "Team", Value: team})
	}
	if !e.CallPlaced {
		fields = append(fields, discordField{Name: "Bridge", Value: "no call placed"})
	}

	return withViewURL(discordEmbed{
		Title:     titleActivated,
		Color:     colorDefault,
		Fields:    fields,
		Footer:    &discordFooter{Text: "incidentId: " + e.IncidentID.String()},
		Timestamp: at.UTC().Format(time.RFC3339),
	}, viewURL)
}

func resolvedPayload(e events.IncidentResolved, viewURL string, at time.Time) discordPayload {
	fields := subjectFields(e.SubjectID, e.Region, e.Tier)
	fields = append(fields, discordField{Name: "Status", Value: e.Status, Inline: true})
	if e.DurationSeconds != nil {
		fields = append(fields, discordField{Name: "Duration", Value: formatDuration(e.DurationSeconds), Inline: true})
	}
	if e.Reason != "" {
		fields = append(fields, discordField{Name: "Reason", Value: e.Reason, Inline: true})
	}
	if isFollowUp(e.Status) {
		fields = append(fields, discordField{Name: "Follow-up", Value: followUpNote})
	}

	return withViewURL(discordEmbed{
		Title:     titleResolved,
		Color:     colorForStatus(e.Status),
		Fields:    fields,
		Footer:    &discordFooter{Text: "incidentId: " + e.IncidentID.String()},
		Timestamp: at.UTC().Format(time.RFC3339),
	}, viewURL)
}

func withViewURL(embed discordEmbed, viewURL string) discordPayload {
	payload := discordPayload{Embeds: []discordEmbed{embed}}
	if viewURL != "" {
		payload.Embeds[0].Description = fmt.Sprintf("[View Incident](%s)", viewURL)
		payload.Content = viewURL
	}
	return payload
}

func isFollowUp(status string) bool {
	return domain.Status(strings.ToLower(status)) == domain.StatusPendingFollowup
}
