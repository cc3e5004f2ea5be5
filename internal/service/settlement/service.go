package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/messaging/kafka"
	"github.com/travelmesh/bms/internal/metrics"
)

// Service владеет канонической биллинговой книгой: реагирует на
// booking.created, выполняет списание через платёжный шлюз, сохраняет
// ровно одну биллинговую запись на booking_id и публикует исход через
// transactional outbox. Запись сохраняется строго до публикации исхода;
// обратный порядок невозможен по построению.
type Service struct {
	billing domain.BillingRepository
	gateway domain.PaymentGateway
	outbox  domain.OutboxRepository
	metrics *metrics.BookingMetrics
	logger  *log.Entry
}

// ServiceOption настраивает Service.
type ServiceOption func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики саги.
func WithMetrics(bookingMetrics *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = bookingMetrics
	}
}

// NewService создаёт сервис расчёта.
func NewService(billing domain.BillingRepository, gateway domain.PaymentGateway, outbox domain.OutboxRepository, options ...ServiceOption) *Service {
	s := &Service{
		billing: billing,
		gateway: gateway,
		outbox:  outbox,
		logger:  log.WithField("component", "settlement-service"),
	}
	for _, option := range options {
		option(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewBookingMetrics()
	}
	return s
}

// HandleBookingCreated обрабатывает booking.created с учётом повторной
// доставки. Возвращённая ошибка означает «повтори доставку»: консьюмер
// доведёт её до retry и DLQ. Невалидные события подтверждаются без retry,
// повторная валидация их не исправит.
func (s *Service) HandleBookingCreated(ctx context.Context, event *kafka.BookingCreated) error {
	logger := s.logger.WithField("booking_id", event.BookingID)

	if err := event.Validate(); err != nil {
		logger.WithError(err).Error("malformed booking.created, dropping")
		s.metrics.RecordSettlementOutcome("dropped")
		return nil
	}

	existing, err := s.billing.GetByBookingID(event.BookingID)
	if err == nil {
		// Повторная доставка после падения между персистом и публикацией:
		// восстанавливаем публикацию исхода вместо молчаливого no-op.
		s.metrics.RecordDuplicateEvent()
		logger.WithField("billing_id", existing.ID).Info("billing record exists, re-publishing outcome")
		return s.enqueueOutcome(existing, event.ListingID)
	}
	if !errors.Is(err, domain.ErrBillingNotFound) {
		return fmt.Errorf("lookup billing record %s: %w", event.BookingID, err)
	}

	start := time.Now()
	status, chargeErr := s.gateway.Charge(ctx, event.BookingID, event.TotalAmount, event.PaymentMethod)
	s.metrics.RecordChargeDuration(time.Since(start))

	if chargeErr != nil {
		// Сбой самой попытки списания: исход не определён, биллинговая
		// запись не создаётся, сага завершается через payment.failed.
		logger.WithError(chargeErr).Error("payment execution failed")
		s.metrics.RecordSettlementOutcome("error")
		return s.enqueueFailure(event, chargeErr)
	}

	txStatus, outcome, err := domain.SettleOutcome(status)
	if err != nil {
		logger.WithError(err).WithField("charge_status", string(status)).Error("gateway returned unknown status")
		s.metrics.RecordSettlementOutcome("error")
		return s.enqueueFailure(event, err)
	}

	record := domain.BillingRecord{
		ID:            uuid.NewString(),
		BookingID:     event.BookingID,
		UserID:        event.UserID,
		BookingType:   domain.ListingType(event.BookingType),
		AmountMinor:   event.TotalAmount,
		PaymentMethod: event.PaymentMethod,
		Status:        txStatus,
	}
	if errs := record.ValidateInvariants(); len(errs) > 0 {
		logger.WithError(errors.Join(errs...)).Error("settlement produced invalid billing record, dropping")
		s.metrics.RecordSettlementOutcome("dropped")
		return nil
	}

	if err := s.billing.Create(record); err != nil {
		if errors.Is(err, domain.ErrBillingDuplicate) {
			// Гонка с параллельной доставкой; победившая запись — истина.
			stored, getErr := s.billing.GetByBookingID(event.BookingID)
			if getErr != nil {
				return fmt.Errorf("reload duplicate billing record %s: %w", event.BookingID, getErr)
			}
			s.metrics.RecordDuplicateEvent()
			return s.enqueueOutcome(stored, event.ListingID)
		}
		return fmt.Errorf("persist billing record %s: %w", event.BookingID, err)
	}

	s.metrics.RecordSettlementOutcome(string(outcome))
	logger.WithFields(log.Fields{
		"billing_id": record.ID,
		"status":     string(txStatus),
	}).Info("booking settled")

	return s.enqueueOutcome(record, event.ListingID)
}

// GetBillingRecord возвращает запись по booking_id для read API.
func (s *Service) GetBillingRecord(bookingID string) (domain.BillingRecord, error) {
	return s.billing.GetByBookingID(bookingID)
}

// ListUserRecords возвращает записи пользователя.
func (s *Service) ListUserRecords(userID string, limit int) ([]domain.BillingRecord, error) {
	return s.billing.ListByUser(userID, limit)
}

func (s *Service) enqueueOutcome(record domain.BillingRecord, listingID string) error {
	outcome := domain.PaymentOutcomeCompleted
	if record.Status != domain.TransactionStatusCompleted {
		outcome = domain.PaymentOutcomeFailed
	}

	payload, err := json.Marshal(kafka.NewPaymentProcessed(record, listingID, outcome))
	if err != nil {
		return fmt.Errorf("marshal payment.processed: %w", err)
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "billing",
		AggregateID:   record.BookingID,
		EventType:     string(kafka.EventTypePaymentProcessed),
		Payload:       payload,
	}); err != nil {
		// Запись уже сохранена; ошибка возвращается ради повторной
		// доставки booking.created, которая дойдёт до repair-ветки.
		return fmt.Errorf("%w: payment.processed for %s: %s", domain.ErrOutboxPublish, record.BookingID, err)
	}
	s.metrics.RecordOutboxEvent()
	return nil
}

func (s *Service) enqueueFailure(event *kafka.BookingCreated, cause error) error {
	payload, err := json.Marshal(kafka.NewPaymentFailed(event.BookingID, event.UserID, cause))
	if err != nil {
		return fmt.Errorf("marshal payment.failed: %w", err)
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "billing",
		AggregateID:   event.BookingID,
		EventType:     string(kafka.EventTypePaymentFailed),
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("%w: payment.failed for %s: %s", domain.ErrOutboxPublish, event.BookingID, err)
	}
	s.metrics.RecordOutboxEvent()
	return nil
}
