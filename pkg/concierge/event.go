package concierge

import (
	"context"
	"time"

	"entrust-concierge-be/pkg/conversation"
)

type EventType string

const (
	EventTurnAppended   EventType = "turn_appended"
	EventTurnAnnotated  EventType = "turn_annotated"
	EventTyping         EventType = "typing"
	EventSessionCleared EventType = "session_cleared"
	EventWidgetChanged  EventType = "widget_changed"
	EventAvailability   EventType = "availability_changed"
)

// Event describes one observable change of a visitor's conversation.
type Event struct {
	Type         EventType          `json:"type"`
	VisitorID    string             `json:"visitor_id"`
	Index        int                `json:"index"`
	Turn         *conversation.Turn `json:"turn,omitempty"`
	Typing       bool               `json:"typing"`
	Widget       *WidgetState       `json:"widget,omitempty"`
	Availability string             `json:"availability,omitempty"`
	OccurredAt   time.Time          `json:"occurred_at"`
}

// Notifier fans events out to renderers. Implementations must not block for
// long: they are called from the delivery path.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event)

func (f NotifierFunc) Notify(ctx context.Context, event Event) {
	f(ctx, event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}
