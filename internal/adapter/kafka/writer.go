// Package kafka publishes scored fire events for downstream consumers such
// as the dashboard and long-term analytics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
)

// Writer produces scored fire events to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishEvents serializes and publishes fire events in a single
// WriteMessages call. Events are keyed by event ID so updates for one fire
// land on one partition in order.
func (w *Writer) PublishEvents(ctx context.Context, events []*domain.FireEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i, event := range events {
		msg, err := serializeToMessage(event)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publishing fire events: %w", err)
	}
	w.logger.Debug("published fire events", "count", len(events))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a fire event into a Kafka message with
// routing headers, so consumers can filter by severity without decoding
// the payload.
func serializeToMessage(event *domain.FireEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize fire event: %w", err)
	}
	headers := []kafkago.Header{
		{Key: "severity", Value: []byte(event.Severity)},
		{Key: "last_detected", Value: []byte(event.LastDetected.UTC().Format(time.RFC3339))},
	}
	if event.Intent != nil {
		headers = append(headers, kafkago.Header{Key: "intent_label", Value: []byte(event.Intent.Label)})
	}
	return kafkago.Message{
		Key:     []byte(event.ID),
		Value:   data,
		Headers: headers,
	}, nil
}
