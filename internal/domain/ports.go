package domain

import (
	"context"
	"time"
)

// PaymentGateway описывает взаимодействие с платёжным провайдером.
// Операция непрозрачна и может завершиться отказом по любой причине,
// включая временные сбои; ошибка означает сбой инфраструктуры, а не
// бизнес-отказ (тот приходит как ChargeDeclined).
type PaymentGateway interface {
	Charge(ctx context.Context, bookingID string, amountMinor int64, method string) (ChargeStatus, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла бронирования.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(bookingID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки HTTP-запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// TimelineEvent описывает событие в жизненном цикле бронирования.
type TimelineEvent struct {
	BookingID string
	Type      string
	Reason    string
	Occurred  time.Time
}
