package service

import (
	"context"
	"encoding/json"

	"entrust-concierge-be/internal/pkg/logger"
	"entrust-concierge-be/pkg/concierge"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// IPublisherService puts conversation events on the in-process bus. It is the
// Notifier every manager emits through.
type IPublisherService interface {
	Notify(ctx context.Context, event concierge.Event)
}

type publisherService struct {
	topicName string
	publisher message.Publisher
	logger    logger.ILogger
}

func NewPublisherService(topicName string, publisher message.Publisher, log logger.ILogger) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
		logger:    log,
	}
}

func (ps *publisherService) Notify(ctx context.Context, event concierge.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		ps.logger.Error("PublisherService", "Failed to marshal event", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := ps.publisher.Publish(ps.topicName, msg); err != nil {
		ps.logger.Error("PublisherService", "Failed to publish event", map[string]interface{}{
			"type":       event.Type,
			"visitor_id": event.VisitorID,
			"error":      err.Error(),
		})
	}
}
