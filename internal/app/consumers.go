package app

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/messaging/kafka"
	"github.com/travelmesh/bms/internal/service/reservation"
	"github.com/travelmesh/bms/internal/service/settlement"
)

// paymentEventsHandler применяет исходы оплаты к резервациям. Обрабатывает
// оба типа из payment-топика: payment.processed несёт бизнес-исход,
// payment.failed означает сбой расчёта и трактуется как failed с
// компенсацией доступности.
func paymentEventsHandler(manager *reservation.Manager, logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		var envelope struct {
			EventType kafka.EventType `json:"event_type"`
		}
		if err := json.Unmarshal(message.Value, &envelope); err != nil {
			logger.WithError(err).WithField("topic", message.Topic).Warn("dropping malformed payment event")
			return nil
		}

		switch envelope.EventType {
		case kafka.EventTypePaymentProcessed:
			event, err := kafka.ParsePaymentProcessed(message.Value)
			if err != nil {
				logger.WithError(err).Warn("dropping malformed payment.processed")
				return nil
			}
			if err := event.Validate(); err != nil {
				logger.WithError(err).Warn("dropping invalid payment.processed")
				return nil
			}
			reason := ""
			if event.Status == string(domain.PaymentOutcomeFailed) {
				reason = "payment declined"
			}
			return manager.ApplyPaymentOutcome(ctx, event.BookingID, domain.PaymentOutcome(event.Status), reason)

		case kafka.EventTypePaymentFailed:
			event, err := kafka.ParsePaymentFailed(message.Value)
			if err != nil {
				logger.WithError(err).Warn("dropping malformed payment.failed")
				return nil
			}
			if event.BookingID == "" {
				logger.Warn("dropping payment.failed without booking_id")
				return nil
			}
			return manager.ApplyPaymentOutcome(ctx, event.BookingID, domain.PaymentOutcomeFailed, event.Error)

		default:
			logger.WithField("event_type", envelope.EventType).Warn("dropping unexpected event in payment topic")
			return nil
		}
	}
}

// bookingEventsHandler передаёт booking.created в settlement-сервис.
func bookingEventsHandler(service *settlement.Service, logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseBookingCreated(message.Value)
		if err != nil {
			logger.WithError(err).WithField("topic", message.Topic).Warn("dropping malformed booking.created")
			return nil
		}
		return service.HandleBookingCreated(ctx, event)
	}
}
