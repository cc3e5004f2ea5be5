package kafka

import (
	"fmt"

	"github.com/travelmesh/bms/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, выбирая topic
// по типу события. Payload в outbox уже содержит готовое событие контракта,
// поэтому публикуется как есть — байт-в-байт одинаково для всех сервисов.
type OutboxTopicPublisher struct {
	producer *Producer
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	topic, err := topicForEventType(EventType(event.EventType))
	if err != nil {
		return err
	}

	// AggregateID — это booking_id, ключ партиционирования саги.
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishRaw(topic, key, event.Payload)
}

// topicForEventType сопоставляет тип события контракта и topic.
func topicForEventType(eventType EventType) (string, error) {
	switch eventType {
	case EventTypeBookingCreated:
		return TopicBookingEvents, nil
	case EventTypePaymentProcessed, EventTypePaymentFailed:
		return TopicPaymentEvents, nil
	default:
		return "", fmt.Errorf("no topic mapped for event type %q", eventType)
	}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// DLQPublisher отправляет сообщения, исчерпавшие retry в outbox worker,
// в dead letter queue.
type DLQPublisher struct {
	producer *Producer
}

// NewDLQPublisher создаёт паблишер в DLQ-топик.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &DLQPublisher{producer: producer}
}

func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.PublishRaw(TopicDeadLetterQueue, key, event.Payload)
}
