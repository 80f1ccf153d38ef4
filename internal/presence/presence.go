// Package presence reports which response partners are on rotation for a
// region. Rotation is deterministic: it depends only on the region and the
// wall-clock minute, so every replica answers the same.
package presence

import "time"

// Status of a partner on the rotation.
type Status string

const (
	StatusActive   Status = "Active"
	StatusRotating Status = "Rotating"
	StatusOffline  Status = "Offline"
)

// DefaultRegion is used for members without a region on file.
const DefaultRegion = "LA"

// Partner is one response team and its current status.
type Partner struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Status   Status `json:"status"`
}

var teams = []struct{ category, name string }{
	{"Legal", "Counsel"},
	{"Medical", "Clinician"},
	{"PR", "Comms"},
	{"Security", "Field Team"},
}

var statuses = []Status{StatusActive, StatusRotating, StatusOffline}

// Rotation returns the partner roster for region at the given time.
func Rotation(region string, at time.Time) []Partner {
	if region == "" {
		region = DefaultRegion
	}
	seed := 0
	for _, r := range region {
		seed += int(r)
	}
	offset := int((int64(seed) + at.Unix()/60) % int64(len(statuses)))

	out := make([]Partner, 0, len(teams))
	for i, t := range teams {
		out = append(out, Partner{
			Category: t.category,
			Name:     t.name,
			Status:   statuses[(offset+i)%len(statuses)],
		})
	}
	return out
}
