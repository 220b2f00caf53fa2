// Package consumer reads raw provider events from Kafka and feeds them to
// the normalizer. This path serves providers whose deliveries arrive via an
// out-of-process edge receiver rather than the HTTP webhook endpoint.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"buildwatch/internal/events"
	"buildwatch/internal/kafka"
	"buildwatch/internal/model"
)

// Ingestor is implemented by the normalizer.
type Ingestor interface {
	Ingest(ctx context.Context, providerName string, body []byte) (*model.Build, error)
}

// Consumer reads raw events from a topic and normalizes them.
type Consumer struct {
	reader   *kafkago.Reader
	ingestor Ingestor
}

// New creates a consumer for the given brokers, topic, and group.
func New(brokers, topic, groupID string, ingestor Ingestor) (*Consumer, error) {
	if err := kafka.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, fmt.Errorf("invalid consumer params: %w", err)
	}

	reader := kafkago.NewReader(kafka.NewReaderConfig(kafka.ParseBrokers(brokers), topic, groupID))
	slog.Info("Kafka consumer created", "topic", topic, "group_id", groupID)

	return &Consumer{reader: reader, ingestor: ingestor}, nil
}

// Run consumes until the context is cancelled. Malformed messages are
// logged and skipped; offsets are committed by the reader, and idempotent
// ingestion makes redelivery after a crash safe.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("Starting raw event consumption loop")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Raw event consumption loop stopped")
				return nil
			}
			slog.Error("Failed to read raw event", "error", err)
			continue
		}

		var raw events.RawEvent
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			slog.Warn("Skipping malformed raw event message",
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}

		if _, err := c.ingestor.Ingest(ctx, raw.Provider, raw.Body); err != nil {
			// Storage-level failure; the message is already committed, so
			// surface it loudly. Validation failures are counted inside
			// the normalizer and do not reach here.
			slog.Error("Failed to ingest raw event",
				"provider", raw.Provider,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
