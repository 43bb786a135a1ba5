package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CONCIERGE_TURN_APPENDED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event codes published on the bus under "events.<code>".
const (
	ConciergeTurnAppended        = "CONCIERGE_TURN_APPENDED"
	ConciergeContactCard         = "CONCIERGE_CONTACT_CARD"
	ConciergeSessionCleared      = "CONCIERGE_SESSION_CLEARED"
	ConciergeAvailabilityChanged = "CONCIERGE_AVAILABILITY_CHANGED"

	// ConciergeOpenRequested is consumed, not produced: any page element or
	// service may ask a visitor's widget to open.
	ConciergeOpenRequested = "CONCIERGE_OPEN_REQUESTED"
)

// Subject returns the bus subject for an event code.
func Subject(eventType string) string {
	return "events." + eventType
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// String returns a payload field or "" when absent or not a string.
func (e BaseEvent) String(key string) string {
	v, _ := e.Data[key].(string)
	return v
}
