package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-passbot/internal/logger"
	"ms-passbot/internal/models"
)

// Publisher ships domain events after the store change they describe has
// committed.
type Publisher interface {
	PublishDomainEvent(ctx context.Context, event models.DomainEventDto) error
	Close() error
}

type Producer struct {
	Writer *kafka.Writer
	prefix string
	log    *logger.Logger
}

// NewProducer builds a writer without a fixed topic; each event goes to
// <prefix>.<event type>.
func NewProducer(brokers []string, prefix string, log *logger.Logger) *Producer {
	if log == nil {
		log = logger.NewNop()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, prefix: prefix, log: log}
}

// TopicFor maps an event type such as "visitor.reserved" to its topic.
func TopicFor(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Topics lists every topic the service publishes to.
func Topics(prefix string) []string {
	types := []string{
		models.VisitorReserved,
		models.VisitorActivated,
		models.VisitorReleased,
		models.VisitorRedeemed,
		models.EventUpserted,
		models.EventDeleted,
	}
	topics := make([]string, 0, len(types))
	for _, t := range types {
		topics = append(topics, TopicFor(prefix, t))
	}
	return topics
}

func buildMessage(prefix string, event models.DomainEventDto) (kafka.Message, error) {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	// keyed by date so every change to one event lands on one partition
	return kafka.Message{
		Topic: TopicFor(prefix, event.Type),
		Key:   []byte(event.EventDate),
		Value: msgBytes,
		Time:  event.OccurredAt,
	}, nil
}

func (p *Producer) PublishDomainEvent(ctx context.Context, event models.DomainEventDto) error {
	msg, err := buildMessage(p.prefix, event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type, err)
	}

	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}
	p.log.LogKafka("PUBLISH", msg.Topic, fmt.Sprintf("date %s", event.EventDate))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishDomainEvent(context.Context, models.DomainEventDto) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }
