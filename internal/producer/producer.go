// Package producer publishes normalized build-change events to Kafka for
// real-time consumers.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"buildwatch/internal/events"
	"buildwatch/internal/kafka"
	"buildwatch/internal/model"
)

// Producer writes build-change events to a Kafka topic, keyed by pipeline
// id so changes for one pipeline stay ordered within a partition.
type Producer struct {
	writer *kafkago.Writer
	topic  string
}

// New creates a producer for the given brokers and topic.
func New(brokers, topic string) (*Producer, error) {
	if err := kafka.ValidateProducerParams(brokers, topic); err != nil {
		return nil, fmt.Errorf("invalid producer params: %w", err)
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(kafka.ParseBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafkago.RequireOne,
	}

	slog.Info("Kafka producer created", "topic", topic)
	return &Producer{writer: writer, topic: topic}, nil
}

// PublishBuildChanged publishes one change event for an upserted build.
func (p *Producer) PublishBuildChanged(ctx context.Context, pipeline *model.Pipeline, build *model.Build) error {
	event := events.NewBuildChanged(pipeline, build)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal build change: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(pipeline.ID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish build change: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
