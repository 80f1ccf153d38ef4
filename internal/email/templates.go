package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title    string
	Heading  string
	CTALabel string
	CTAURL   string
}

type incidentOpenedEmailData struct {
	baseEmailData
	IncidentOpened
	OpenedAtFormatted string
}

type incidentResolvedEmailData struct {
	baseEmailData
	IncidentResolved
	ResolvedAtFormatted string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 MST")
}

func renderIncidentOpened(data IncidentOpened) (string, error) {
	return renderEmailTemplate("incident_opened.html", incidentOpenedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Hotline incident opened",
			Heading:  "A member activated the hotline",
			CTALabel: "View incident",
			CTAURL:   data.ViewURL,
		},
		IncidentOpened:    data,
		OpenedAtFormatted: formatTimestamp(data.OpenedAt),
	})
}

func renderIncidentResolved(data IncidentResolved) (string, error) {
	return renderEmailTemplate("incident_resolved.html", incidentResolvedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Hotline incident resolved",
			Heading:  "Incident " + data.Status,
			CTALabel: "View incident",
			CTAURL:   data.ViewURL,
		},
		IncidentResolved:    data,
		ResolvedAtFormatted: formatTimestamp(data.ResolvedAt),
	})
}
