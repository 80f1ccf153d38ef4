package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderIncidentOpenedListsRoster(t *testing.T) {
	content, err := renderIncidentOpened(IncidentOpened{
		IncidentID: "4f1c2d7e-0000-0000-0000-000000000001",
		SubjectID:  "WOLF-1",
		Tier:       "Silver",
		Region:     "NYC",
		CallPlaced: true,
		ViewURL:    "https://hotline.example.com/status/4f1c2d7e",
		OpenedAt:   time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		Partners:   []PartnerLine{{Category: "Legal/Counsel", Name: "Avery Stone", Status: "Active"}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"WOLF-1", "Legal/Counsel: Avery Stone (Active)", "https://hotline.example.com/status/4f1c2d7e", "2026-06-01 09:00:00 UTC"} {
		if !strings.Contains(content, want) {
			t.Fatalf("expected %q in rendered email", want)
		}
	}
}

func TestRenderIncidentResolvedFollowUpNote(t *testing.T) {
	content, err := renderIncidentResolved(IncidentResolved{
		IncidentID: "4f1c2d7e",
		SubjectID:  "WOLF-1",
		Status:     "pending_followup",
		Duration:   "-",
		FollowUp:   true,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(content, "Reach out to them directly") {
		t.Fatal("expected follow-up note")
	}

	content, err = renderIncidentResolved(IncidentResolved{IncidentID: "x", Status: "resolved", Duration: "42s"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(content, "Reach out to them directly") {
		t.Fatal("unexpected follow-up note on resolved incident")
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("4f1c2d7e-aaaa"); got != "4f1c2d7e" {
		t.Fatalf("unexpected short id %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("unexpected short id %q", got)
	}
}
