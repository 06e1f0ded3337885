package eventsource

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/port"
)

const groupPrefix = "order-realtime-"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads mutation events from the change-feed topic. Offsets are
// committed before an event is handed out, so a crash loses at most the
// event in flight and never replays it.
type KafkaSource struct {
	reader messageReader
	log    zerolog.Logger
}

// NewKafkaSource joins the consumer group for consumer. A new group starts at
// the end of the topic; events written while nobody listened are not replayed.
func NewKafkaSource(brokers []string, topic, consumer string) *KafkaSource {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupPrefix + consumer,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.LastOffset,
		CommitInterval: 0,
	})
	return newKafkaSourceWith(r, consumer)
}

func newKafkaSourceWith(r messageReader, consumer string) *KafkaSource {
	return &KafkaSource{
		reader: r,
		log:    log.With().Str("component", "kafka_source").Str("consumer", consumer).Logger(),
	}
}

// KafkaFactory opens one reader per consumer on every call.
func KafkaFactory(brokers []string, topic string) port.EventSourceFactory {
	return func(consumer string) (port.EventSource, error) {
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka source %s: no brokers configured", consumer)
		}
		return NewKafkaSource(brokers, topic, consumer), nil
	}
}

func (s *KafkaSource) Next(ctx context.Context) (domain.MutationEvent, error) {
	for {
		m, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.MutationEvent{}, ctx.Err()
			}
			return domain.MutationEvent{}, fmt.Errorf("fetch message: %w", err)
		}

		if err := s.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return domain.MutationEvent{}, ctx.Err()
			}
			return domain.MutationEvent{}, fmt.Errorf("commit message: %w", err)
		}

		ev, err := decodeEvent(m.Value)
		if err != nil {
			s.log.Error().Err(err).Int("partition", m.Partition).Int64("offset", m.Offset).Msg("skipping bad change message")
			continue
		}
		return ev, nil
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// KafkaPublisher writes mutation events to the change-feed topic, keyed by
// order ID so events for one order stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.MutationEvent) error {
	b, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.OrderID), Value: b})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
