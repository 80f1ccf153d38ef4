package events

import (
	platformevents "hotline_backend/platform/events"
	"hotline_backend/platform/logger"
)

// Bus infrastructure lives in platform/events; these aliases let hotline
// modules depend on a single events package.
type (
	Event       = platformevents.Event
	Bus         = platformevents.Bus
	Publisher   = platformevents.Publisher
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
	InMemoryBus = platformevents.InMemoryBus
)

// NewBaseEvent stamps a new event with the current time.
var NewBaseEvent = platformevents.NewBaseEvent

// NewInMemoryBus returns the process-local bus that carries incident events
// from the hotline service to notification and metrics subscribers.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}
