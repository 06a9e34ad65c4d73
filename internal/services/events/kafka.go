package events

import (
	"context"
	"encoding/json"
	"time"

	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

// Message is the wire form of an event on the events topic.
type Message struct {
	SiteID    string          `json:"site_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// KafkaEmitter publishes events asynchronously; the worker persists them.
type KafkaEmitter struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaEmitter(brokers []string, topic string, logger *logger.Logger) *KafkaEmitter {
	log := logger.With("component", "kafka-emitter", "topic", topic)

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("Failed to publish %d event(s): %v", len(messages), err)
			}
		},
	}

	return &KafkaEmitter{writer: w, logger: log}
}

func (e *KafkaEmitter) Emit(ctx context.Context, siteID string, eventType models.EventType, payload any) {
	var raw json.RawMessage
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			e.logger.Warn("Failed to encode %s payload for site %s: %v", eventType, siteID, err)
			return
		}
		raw = body
	}

	value, err := json.Marshal(Message{
		SiteID:    siteID,
		EventType: string(eventType),
		Payload:   raw,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("Failed to encode %s event for site %s: %v", eventType, siteID, err)
		return
	}

	// Async writer: this only enqueues, delivery errors reach Completion.
	if err := e.writer.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:   []byte(siteID),
		Value: value,
	}); err != nil {
		e.logger.Warn("Failed to enqueue %s event for site %s: %v", eventType, siteID, err)
	}
}

// Close flushes pending writes.
func (e *KafkaEmitter) Close() error {
	return e.writer.Close()
}
