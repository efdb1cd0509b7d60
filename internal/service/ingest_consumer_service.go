package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"ai-consultation-be/internal/dto"
	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/knowledge"
	pktNats "ai-consultation-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
)

const (
	consumerModule = "IngestConsumer"

	// maxIngestAttempts bounds redelivery of a message whose chunks all
	// failed to embed.
	maxIngestAttempts = 3
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	store      *knowledge.ChunkStore
	events     pktNats.EventPublisher
	logger     logger.ILogger

	mu       sync.Mutex
	attempts map[string]int
}

// NewConsumerService builds the async ingestion worker. publisher may be nil.
func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	store *knowledge.ChunkStore,
	publisher pktNats.EventPublisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		store:      store,
		events:     publisher,
		logger:     log,
		attempts:   make(map[string]int),
	}
}

// Consume subscribes and processes messages on its own goroutine until ctx
// is cancelled.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishIngestDocumentMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal message", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	report, err := cs.store.Ingest(ctx, knowledge.Document{
		SourceID: payload.SourceId,
		Title:    payload.Title,
		Text:     payload.Text,
	})

	var embErr *knowledge.EmbeddingError
	switch {
	case err == nil:
		cs.forget(msg.UUID)
		cs.logger.Info(consumerModule, "Document ingested", map[string]interface{}{
			"source_id": report.SourceID,
			"chunks":    len(report.Chunks),
			"skipped":   len(report.Skipped),
		})
		publishIngested(ctx, cs.events, cs.logger, report)
		msg.Ack()

	case errors.As(err, &embErr) && cs.retry(msg.UUID):
		cs.logger.Warn(consumerModule, "Embedding failed, retrying", map[string]interface{}{
			"source_id": payload.SourceId,
			"error":     err.Error(),
		})
		msg.Nack()

	default:
		cs.forget(msg.UUID)
		cs.logger.Error(consumerModule, "Failed to ingest document", map[string]interface{}{
			"source_id": payload.SourceId,
			"error":     err,
		})
		msg.Ack() // Corrupt documents never succeed on redelivery.
	}
}

// retry counts an attempt and reports whether another one is allowed.
func (cs *consumerService) retry(id string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.attempts[id]++
	if cs.attempts[id] >= maxIngestAttempts {
		delete(cs.attempts, id)
		return false
	}
	return true
}

func (cs *consumerService) forget(id string) {
	cs.mu.Lock()
	delete(cs.attempts, id)
	cs.mu.Unlock()
}
