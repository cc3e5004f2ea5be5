package domain

import "time"

// TransactionStatus описывает жизненный цикл биллинговой записи.
type TransactionStatus string

const (
	// TransactionStatusPending зарезервирован за внешними потоками; сага
	// создаёт запись сразу в терминальном статусе.
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusCompleted — списание прошло успешно.
	TransactionStatusCompleted TransactionStatus = "completed"
	// TransactionStatusFailed — провайдер отклонил списание.
	TransactionStatusFailed TransactionStatus = "failed"
	// TransactionStatusRefunded — возврат средств (вне цикла саги).
	TransactionStatusRefunded TransactionStatus = "refunded"
	// TransactionStatusCancelled — отмена до списания (вне цикла саги).
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Terminal сообщает, зафиксирован ли статус окончательно с точки зрения саги.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusRefunded, TransactionStatusCancelled:
		return true
	default:
		return false
	}
}

// BillingRecord — каноническая запись расчёта по бронированию.
// Единственный источник истины для вопроса «рассчитано ли бронирование»:
// на один booking_id существует не более одной записи.
type BillingRecord struct {
	ID            string
	BookingID     string
	UserID        string
	BookingType   ListingType
	AmountMinor   int64
	PaymentMethod string
	Status        TransactionStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateInvariants проверяет инварианты записи перед сохранением.
func (b *BillingRecord) ValidateInvariants() []error {
	var errs []error

	if b.BookingID == "" {
		errs = append(errs, ErrBookingIDRequired)
	}
	if b.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if !b.BookingType.Valid() {
		errs = append(errs, ErrListingTypeInvalid)
	}
	if b.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}

// ChargeStatus — чистый результат обращения к платёжному провайдеру.
type ChargeStatus string

const (
	// ChargeApproved — провайдер подтвердил списание.
	ChargeApproved ChargeStatus = "approved"
	// ChargeDeclined — провайдер отклонил списание (бизнес-отказ, не сбой).
	ChargeDeclined ChargeStatus = "declined"
)

// SettleOutcome переводит чистый ответ провайдера в терминальный статус
// биллинговой записи и исход для события payment.processed. Сбои провайдера
// (ошибки) сюда не попадают — они обрабатываются через payment.failed.
func SettleOutcome(status ChargeStatus) (TransactionStatus, PaymentOutcome, error) {
	switch status {
	case ChargeApproved:
		return TransactionStatusCompleted, PaymentOutcomeCompleted, nil
	case ChargeDeclined:
		return TransactionStatusFailed, PaymentOutcomeFailed, nil
	default:
		return "", "", ErrChargeStatusInvalid
	}
}
