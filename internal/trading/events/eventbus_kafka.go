package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Aidin1998/triggerbook/pkg/logger"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventBus publishes events as JSON records keyed by pair, so every
// event for a pair lands on the same partition in publish order.
type KafkaEventBus struct {
	logger *zap.Logger
	writer messageWriter
}

// NewKafkaEventBus creates an asynchronous publisher; the scan never waits on
// the broker. Delivery failures are logged from the completion callback.
func NewKafkaEventBus(cfg KafkaConfig, log *zap.Logger) *KafkaEventBus {
	log = logger.OrNop(log)
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error("Kafka event delivery failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return newKafkaEventBus(w, log)
}

func newKafkaEventBus(w messageWriter, log *zap.Logger) *KafkaEventBus {
	return &KafkaEventBus{logger: logger.OrNop(log), writer: w}
}

// Publish encodes and hands the event to the writer.
func (bus *KafkaEventBus) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		bus.logger.Error("Failed to marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.Pair),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "published_at", Value: []byte(strconv.FormatInt(event.Timestamp.UnixNano(), 10))},
		},
	}
	if err := bus.writer.WriteMessages(ctx, msg); err != nil {
		bus.logger.Error("Failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

// Close flushes pending messages.
func (bus *KafkaEventBus) Close() error {
	return bus.writer.Close()
}
