package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/catalogd/registry/internal/logger"
	"github.com/catalogd/registry/internal/tracing"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Structured mode content type for the message value
const cloudEventsContentType = "application/cloudevents+json"

// messageWriter is the part of *kafka.Writer used by KafkaSink
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSink
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaSink publishes events to a Kafka topic keyed by subject
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    zerolog.Logger
}

// NewKafkaSink creates a sink backed by a kafka-go writer
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, cfg.Topic), nil
}

func newKafkaSink(w messageWriter, topic string) *KafkaSink {
	return &KafkaSink{
		writer: w,
		topic:  topic,
		log:    logger.WithComponent("notify.kafka"),
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, ev *Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "content-type", Value: []byte(cloudEventsContentType)},
		{Key: "ce_id", Value: []byte(ev.ID)},
		{Key: "ce_type", Value: []byte(ev.Type)},
		{Key: "ce_source", Value: []byte(ev.Source)},
		{Key: "ce_specversion", Value: []byte(ev.SpecVersion)},
	}
	for k, v := range tracing.InjectToHeaders(ctx) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(ev.Subject),
		Value:   value,
		Headers: headers,
		Time:    ev.Time,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", s.topic, err)
	}
	s.log.Debug().Str("topic", s.topic).Str("type", ev.Type).Str("subject", ev.Subject).Msg("Event written")
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
