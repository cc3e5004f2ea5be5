package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

// EventType определяет тип события саги бронирования.
type EventType string

const (
	// EventTypeBookingCreated публикуется менеджером резерваций после
	// создания pending-резервации и удержания доступности.
	EventTypeBookingCreated EventType = "booking.created"
	// EventTypePaymentProcessed несёт терминальный исход расчёта
	// (completed или failed — историческое имя покрывает оба).
	EventTypePaymentProcessed EventType = "payment.processed"
	// EventTypePaymentFailed сигнализирует о сбое самой попытки расчёта,
	// до того как исход мог быть определён.
	EventTypePaymentFailed EventType = "payment.failed"
)

// SchemaVersion — текущая версия схемы payload для всех топиков.
const SchemaVersion = 1

// Topics для Kafka. Ключ партиционирования всех событий — booking_id,
// поэтому события одного бронирования попадают к одному члену группы
// в порядке публикации.
const (
	TopicBookingEvents   = "bms.booking.events"
	TopicPaymentEvents   = "bms.payment.events"
	TopicDeadLetterQueue = "bms.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// BookingCreated — событие о созданном бронировании.
type BookingCreated struct {
	EventType     EventType  `json:"event_type"`
	Version       int        `json:"version"`
	BookingID     string     `json:"booking_id"`
	UserID        string     `json:"user_id"`
	BookingType   string     `json:"booking_type"`
	ListingID     string     `json:"listing_id"`
	TravelDate    time.Time  `json:"travel_date"`
	ReturnDate    *time.Time `json:"return_date,omitempty"`
	Quantity      int32      `json:"quantity"`
	TotalAmount   int64      `json:"total_amount"`
	PaymentMethod string     `json:"payment_method"`
	Timestamp     time.Time  `json:"timestamp"`
}

// PaymentProcessed — терминальный исход расчёта по бронированию.
type PaymentProcessed struct {
	EventType   EventType `json:"event_type"`
	Version     int       `json:"version"`
	BillingID   string    `json:"billing_id"`
	BookingID   string    `json:"booking_id"`
	UserID      string    `json:"user_id"`
	BookingType string    `json:"booking_type"`
	ListingID   string    `json:"listing_id"`
	Amount      int64     `json:"amount"`
	Status      string    `json:"status"` // completed|failed
	Timestamp   time.Time `json:"timestamp"`
}

// PaymentFailed — сбой попытки расчёта без созданной биллинговой записи.
type PaymentFailed struct {
	EventType EventType `json:"event_type"`
	Version   int       `json:"version"`
	BookingID string    `json:"booking_id"`
	UserID    string    `json:"user_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBookingCreated собирает событие из резервации.
func NewBookingCreated(res domain.Reservation) *BookingCreated {
	event := &BookingCreated{
		EventType:     EventTypeBookingCreated,
		Version:       SchemaVersion,
		BookingID:     res.BookingID,
		UserID:        res.UserID,
		BookingType:   string(res.ListingType),
		ListingID:     res.ListingID,
		TravelDate:    res.TravelDate,
		Quantity:      res.Quantity,
		TotalAmount:   res.AmountMinor,
		PaymentMethod: res.PaymentMethod,
		Timestamp:     time.Now().UTC(),
	}
	if !res.ReturnDate.IsZero() {
		rd := res.ReturnDate
		event.ReturnDate = &rd
	}
	return event
}

// NewPaymentProcessed собирает событие из биллинговой записи и исхода.
func NewPaymentProcessed(rec domain.BillingRecord, listingID string, outcome domain.PaymentOutcome) *PaymentProcessed {
	return &PaymentProcessed{
		EventType:   EventTypePaymentProcessed,
		Version:     SchemaVersion,
		BillingID:   rec.ID,
		BookingID:   rec.BookingID,
		UserID:      rec.UserID,
		BookingType: string(rec.BookingType),
		ListingID:   listingID,
		Amount:      rec.AmountMinor,
		Status:      string(outcome),
		Timestamp:   time.Now().UTC(),
	}
}

// NewPaymentFailed собирает событие о сбое расчёта.
func NewPaymentFailed(bookingID, userID string, cause error) *PaymentFailed {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &PaymentFailed{
		EventType: EventTypePaymentFailed,
		Version:   SchemaVersion,
		BookingID: bookingID,
		UserID:    userID,
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}

// Validate проверяет обязательные поля контракта. Событие без них никогда
// не станет валидным, поэтому потребитель логирует и отбрасывает его.
func (e *BookingCreated) Validate() error {
	if e.Version != 0 && e.Version != SchemaVersion {
		return fmt.Errorf("booking.created: unsupported schema version %d", e.Version)
	}
	if e.BookingID == "" {
		return fmt.Errorf("booking.created: %w", domain.ErrBookingIDRequired)
	}
	if e.UserID == "" {
		return fmt.Errorf("booking.created: %w", domain.ErrUserRequired)
	}
	if !domain.ListingType(e.BookingType).Valid() {
		return fmt.Errorf("booking.created: %w", domain.ErrListingTypeInvalid)
	}
	if e.TotalAmount <= 0 {
		return fmt.Errorf("booking.created: total_amount must be positive")
	}
	return nil
}

// Validate проверяет обязательные поля исхода расчёта.
func (e *PaymentProcessed) Validate() error {
	if e.Version != 0 && e.Version != SchemaVersion {
		return fmt.Errorf("payment.processed: unsupported schema version %d", e.Version)
	}
	if e.BookingID == "" {
		return fmt.Errorf("payment.processed: %w", domain.ErrBookingIDRequired)
	}
	if !domain.PaymentOutcome(e.Status).Valid() {
		return fmt.Errorf("payment.processed: %w", domain.ErrPaymentOutcomeInvalid)
	}
	return nil
}

// ParseBookingCreated парсит BookingCreated из значения сообщения.
func ParseBookingCreated(value []byte) (*BookingCreated, error) {
	var event BookingCreated
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal booking.created: %w", err)
	}
	return &event, nil
}

// ParsePaymentProcessed парсит PaymentProcessed из значения сообщения.
func ParsePaymentProcessed(value []byte) (*PaymentProcessed, error) {
	var event PaymentProcessed
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal payment.processed: %w", err)
	}
	return &event, nil
}

// ParsePaymentFailed парсит PaymentFailed из значения сообщения.
func ParsePaymentFailed(value []byte) (*PaymentFailed, error) {
	var event PaymentFailed
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal payment.failed: %w", err)
	}
	return &event, nil
}
