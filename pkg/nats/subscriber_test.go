package nats

import (
	"testing"
	"time"

	"entrust-concierge-be/pkg/events"

	"github.com/stretchr/testify/assert"
)

func TestEventFrom(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	event := eventFrom(events.Subject(events.ConciergeOpenRequested), map[string]interface{}{
		"visitor_id":  "v-1",
		"occurred_at": at.Format(time.RFC3339Nano),
	})

	assert.Equal(t, events.ConciergeOpenRequested, event.EventType())
	assert.Equal(t, "v-1", event.String("visitor_id"))
	assert.True(t, at.Equal(event.Timestamp()))
}

func TestEventFrom_MissingTimestamp(t *testing.T) {
	before := time.Now()
	event := eventFrom("events.OTHER", map[string]interface{}{})

	assert.Equal(t, "OTHER", event.EventType())
	assert.False(t, event.Timestamp().Before(before))
}
