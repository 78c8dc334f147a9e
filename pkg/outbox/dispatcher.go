package outbox

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-orchestrator/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaDispatcher mirrors drained events to a kafka topic for out-of-process
// consumers (notification, projections). Messages are keyed by aggregate ID
// so one aggregate's stream stays on one partition, in order.
type KafkaDispatcher struct {
	log      *slog.Logger
	producer Producer
	topic    string
}

func NewKafkaDispatcher(log *slog.Logger, producer Producer, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{log: log, producer: producer, topic: topic}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, event Event) error {
	headers := make([]kafka.Header, 0, len(event.Headers)+3)
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	headers = append(headers,
		kafka.Header{Key: "event_type", Value: []byte(event.Type)},
		kafka.Header{Key: "event_id", Value: []byte(event.EventID)},
	)
	// The trace staged with the row, not the relay's own context, is what
	// downstream consumers should continue.
	ctx = tracing.ExtractTraceparent(ctx, event.Traceparent)
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	msg := kafka.Message{
		Topic:   d.topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		d.log.Error("outbox kafka dispatch failed", "event_id", event.EventID, "err", err)
		return err
	}
	d.log.Debug("outbox event mirrored", "event_id", event.EventID, "type", event.Type)
	return nil
}
