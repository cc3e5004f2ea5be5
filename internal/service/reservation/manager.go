package reservation

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

// Manager владеет стороной предложения в саге бронирования: создаёт
// pending-резервации с удержанием доступности, публикует booking.created
// через transactional outbox и применяет исходы расчёта, включая
// компенсацию счётчика при отказе оплаты.
type Manager struct {
	listings domain.ListingRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.BookingMetrics
	logger   *log.Entry
}

// ManagerOption настраивает Manager.
type ManagerOption func(*Manager)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics задаёт метрики саги.
func WithMetrics(bookingMetrics *metrics.BookingMetrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = bookingMetrics
	}
}

// WithTimeline задаёт хранилище таймлайна бронирований.
func WithTimeline(timeline domain.TimelineRepository) ManagerOption {
	return func(m *Manager) {
		m.timeline = timeline
	}
}

// NewManager создаёт менеджер резерваций.
func NewManager(listings domain.ListingRepository, outbox domain.OutboxRepository, options ...ManagerOption) *Manager {
	m := &Manager{
		listings: listings,
		outbox:   outbox,
		logger:   log.WithField("component", "reservation-manager"),
	}
	for _, option := range options {
		option(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.NewBookingMetrics()
	}
	return m
}

// CreateListing регистрирует листинг в инвентаре. Нулевая доступность
// по умолчанию равна вместимости.
func (m *Manager) CreateListing(listing domain.Listing) (domain.Listing, error) {
	if !listing.Type.Valid() {
		return domain.Listing{}, domain.ErrListingTypeInvalid
	}
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if listing.Available == 0 && listing.Capacity > 0 {
		listing.Available = listing.Capacity
	}
	if err := m.listings.Create(listing); err != nil {
		return domain.Listing{}, fmt.Errorf("create listing: %w", err)
	}
	return listing, nil
}

// GetListing возвращает листинг с резервациями.
func (m *Manager) GetListing(id string) (domain.Listing, error) {
	return m.listings.Get(id)
}

// CreateBooking создаёт pending-резервацию и ставит booking.created в outbox.
// Резервация фиксируется в хранилище до любой публикации; событие уходит
// наружу асинхронно через outbox worker, что сохраняет порядок
// «персист раньше публикации».
func (m *Manager) CreateBooking(ctx context.Context, req domain.ReservationRequest) (domain.Reservation, error) {
	if errs := req.ValidateInvariants(); len(errs) > 0 {
		return domain.Reservation{}, errors.Join(errs...)
	}

	listing, err := m.listings.Get(req.ListingID)
	if err != nil {
		return domain.Reservation{}, err
	}

	res := domain.Reservation{
		BookingID:     uuid.NewString(),
		ListingID:     listing.ID,
		ListingType:   listing.Type,
		UserID:        req.UserID,
		Quantity:      req.Quantity,
		TravelDate:    req.TravelDate,
		ReturnDate:    req.ReturnDate,
		AmountMinor:   listing.PriceMinor * int64(req.Quantity),
		PaymentMethod: req.PaymentMethod,
	}

	start := time.Now()
	if err := m.listings.Reserve(listing.ID, res); err != nil {
		return domain.Reservation{}, err
	}
	m.metrics.RecordStepDuration("reserve", time.Since(start))
	m.metrics.RecordBookingCreated()

	stored, err := m.listings.FindReservation(res.BookingID)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("load stored reservation: %w", err)
	}

	m.appendTimeline(stored.BookingID, string(kafka.EventTypeBookingCreated), "")

	if err := m.enqueueBookingCreated(stored); err != nil {
		// Резервация уже зафиксирована; если события нет, исход не придёт
		// и pending-резервацию закроет reconciliation sweep.
		m.logger.WithError(err).WithField("booking_id", stored.BookingID).
			Error("failed to enqueue booking.created")
		m.appendTimeline(stored.BookingID, "outbox.enqueue_failed", err.Error())
	}

	return stored, nil
}

// GetBooking возвращает резервацию по booking_id.
func (m *Manager) GetBooking(bookingID string) (domain.Reservation, error) {
	return m.listings.FindReservation(bookingID)
}

// Timeline возвращает аудит-историю бронирования.
func (m *Manager) Timeline(bookingID string) ([]domain.TimelineEvent, error) {
	if m.timeline == nil {
		return nil, nil
	}
	return m.timeline.List(bookingID)
}

// ApplyPaymentOutcome применяет исход расчёта к резервации. Событие о
// неизвестном booking_id подтверждается без эффекта: это либо чужое
// бронирование из другого окружения, либо мусор, и retry его не исправит.
// Повторная доставка известного исхода тоже подтверждается как no-op.
func (m *Manager) ApplyPaymentOutcome(ctx context.Context, bookingID string, outcome domain.PaymentOutcome, reason string) error {
	logger := m.logger.WithFields(log.Fields{
		"booking_id": bookingID,
		"outcome":    string(outcome),
	})

	result, err := m.listings.FinalizeReservation(bookingID, outcome)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			logger.Warn("payment outcome for unknown booking, ignoring")
			return nil
		}
		return fmt.Errorf("finalize reservation %s: %w", bookingID, err)
	}

	if !result.Applied {
		m.metrics.RecordDuplicateEvent()
		logger.WithField("status", string(result.Reservation.Status)).
			Info("payment outcome redelivered, reservation already terminal")
		return nil
	}

	switch result.Reservation.Status {
	case domain.ReservationStatusConfirmed:
		m.metrics.RecordBookingConfirmed()
		m.appendTimeline(bookingID, "reservation.confirmed", reason)
		logger.Info("reservation confirmed")
	case domain.ReservationStatusCancelled:
		m.metrics.RecordBookingCancelled()
		if result.Restored {
			m.metrics.RecordAvailabilityRestored()
		}
		m.appendTimeline(bookingID, "reservation.cancelled", reason)
		logger.WithField("restored", result.Restored).Info("reservation cancelled, hold returned")
	}

	return nil
}

func (m *Manager) enqueueBookingCreated(res domain.Reservation) error {
	payload, err := json.Marshal(kafka.NewBookingCreated(res))
	if err != nil {
		return fmt.Errorf("marshal booking.created: %w", err)
	}

	_, err = m.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "booking",
		AggregateID:   res.BookingID,
		EventType:     string(kafka.EventTypeBookingCreated),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrOutboxPublish, err)
	}
	m.metrics.RecordOutboxEvent()
	return nil
}

func (m *Manager) appendTimeline(bookingID, eventType, reason string) {
	if m.timeline == nil {
		return
	}
	err := m.timeline.Append(domain.TimelineEvent{
		BookingID: bookingID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	})
	if err != nil {
		m.logger.WithError(err).WithField("booking_id", bookingID).Warn("failed to append timeline event")
		return
	}
	m.metrics.RecordTimelineEvent()
}
