package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/services/events"
	"storefront/internal/worker/processors"

	"github.com/segmentio/kafka-go"
)

const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// MessageReader is the part of *kafka.Reader the worker drives.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Processor interface {
	Process(ctx context.Context, msg events.Message) error
}

type Worker struct {
	logger    *logger.Logger
	reader    MessageReader
	processor Processor
}

func New(cfg *config.Config, logger *logger.Logger, processor *processors.EventProcessor) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers(),
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaEventsTopic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})

	return NewWithReader(reader, processor, logger.With("component", "worker", "topic", cfg.KafkaEventsTopic))
}

func NewWithReader(reader MessageReader, processor Processor, logger *logger.Logger) *Worker {
	return &Worker{
		logger:    logger,
		reader:    reader,
		processor: processor,
	}
}

// Start consumes events until ctx is cancelled. A message is committed once
// it has been stored, rejected or has exhausted its retries.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Worker started, listening for events...")

	for {
		message, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				w.logger.Info("Worker stopped")
				return nil
			}
			w.logger.Error("Failed to read message: %v", err)
			continue
		}

		w.logger.Debug("Received message at offset %d: %s", message.Offset, string(message.Value))
		w.handle(ctx, message)

		if err := w.reader.CommitMessages(ctx, message); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Failed to commit offset %d: %v", message.Offset, err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, message kafka.Message) {
	var event events.Message
	if err := json.Unmarshal(message.Value, &event); err != nil {
		w.logger.Error("Failed to parse event at offset %d: %v", message.Offset, err)
		return
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := w.processor.Process(ctx, event)
		if err == nil {
			return
		}
		if errors.Is(err, processors.ErrRejected) {
			w.logger.Warn("Dropping %s event for site %s: %v", event.EventType, event.SiteID, err)
			return
		}
		w.logger.Error("Failed to process %s event for site %s (attempt %d/%d): %v",
			event.EventType, event.SiteID, attempt, maxAttempts, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
}

func (w *Worker) Stop() error {
	w.logger.Info("Stopping worker...")
	return w.reader.Close()
}
