package service

import (
	"context"
	"encoding/json"
	"time"

	"entrust-concierge-be/internal/pkg/logger"
	"entrust-concierge-be/pkg/concierge"
	"entrust-concierge-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	analyticsTimeout = 2 * time.Second

	// Events waiting for NATS. When it is slow or down the queue fills and
	// further analytics are dropped; widget frames are never held back.
	analyticsQueueSize = 1024
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// EventDelivery pushes frames to connected widgets. Implemented by the
// websocket hub.
type EventDelivery interface {
	SendToVisitor(visitorID string, data []byte)
	Broadcast(data []byte)
}

// AnalyticsPublisher forwards selected events to the shared bus. Implemented
// by the NATS publisher.
type AnalyticsPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Frame is the websocket message shape.
type Frame struct {
	Type concierge.EventType `json:"type"`
	Data concierge.Event     `json:"data"`
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	delivery   EventDelivery
	analytics  AnalyticsPublisher
	queue      chan events.Event
	logger     logger.ILogger
}

// NewConsumerService wires the bus to renderers. analytics may be nil when no
// NATS server is configured.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	delivery EventDelivery,
	analytics AnalyticsPublisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		delivery:   delivery,
		analytics:  analytics,
		queue:      make(chan events.Event, analyticsQueueSize),
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	if cs.analytics != nil {
		go cs.publishAnalytics(ctx)
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

// publishAnalytics drains the queue on its own goroutine so the bus loop,
// and with it every manager's emit, never waits on NATS.
func (cs *consumerService) publishAnalytics(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-cs.queue:
			pubCtx, cancel := context.WithTimeout(ctx, analyticsTimeout)
			err := cs.analytics.Publish(pubCtx, event)
			cancel()
			if err != nil {
				cs.logger.Warn("ConsumerService", "Failed to publish analytics event", map[string]interface{}{
					"type":  event.EventType(),
					"error": err.Error(),
				})
			}
		}
	}
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var event concierge.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal event", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	frame, err := json.Marshal(Frame{Type: event.Type, Data: event})
	if err != nil {
		msg.Ack()
		return
	}

	if event.VisitorID == "" {
		cs.delivery.Broadcast(frame)
	} else {
		cs.delivery.SendToVisitor(event.VisitorID, frame)
	}
	msg.Ack()

	if analyticsEvent, ok := toAnalytics(event); ok && cs.analytics != nil {
		select {
		case cs.queue <- analyticsEvent:
		default:
			cs.logger.Warn("ConsumerService", "Analytics queue full, dropping event", map[string]interface{}{
				"type":       analyticsEvent.EventType(),
				"visitor_id": event.VisitorID,
			})
		}
	}
}

// toAnalytics maps conversation events to bus events. Transcript text never
// leaves the service; only shape and size do.
func toAnalytics(event concierge.Event) (events.Event, bool) {
	base := events.BaseEvent{
		Data:       map[string]interface{}{"visitor_id": event.VisitorID},
		OccurredAt: event.OccurredAt,
	}

	switch event.Type {
	case concierge.EventTurnAppended:
		if event.Turn == nil {
			return nil, false
		}
		base.Type = events.ConciergeTurnAppended
		base.Data["index"] = event.Index
		base.Data["role"] = string(event.Turn.Role)
		base.Data["length"] = len([]rune(event.Turn.Text))
		base.Data["contact_card"] = event.Turn.HasContactCard()
	case concierge.EventTurnAnnotated:
		base.Type = events.ConciergeContactCard
		base.Data["index"] = event.Index
	case concierge.EventSessionCleared:
		base.Type = events.ConciergeSessionCleared
	case concierge.EventAvailability:
		base.Type = events.ConciergeAvailabilityChanged
		base.Data["availability"] = event.Availability
	default:
		return nil, false
	}
	return base, true
}
