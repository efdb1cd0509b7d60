package service

import (
	"context"
	"encoding/json"

	"ai-consultation-be/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type IPublisherService interface {
	PublishIngestDocument(ctx context.Context, payload dto.PublishIngestDocumentMessage) (string, error)
}

type publisherService struct {
	topicName string
	publisher message.Publisher
}

func NewPublisherService(topicName string, publisher message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
	}
}

// PublishIngestDocument queues a document for the ingest consumer and
// returns the message id.
func (ps *publisherService) PublishIngestDocument(ctx context.Context, payload dto.PublishIngestDocumentMessage) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("source_id", payload.SourceId)
	msg.SetContext(ctx)

	if err := ps.publisher.Publish(ps.topicName, msg); err != nil {
		return "", err
	}
	return msg.UUID, nil
}
