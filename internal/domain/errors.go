package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора листинга.
	ErrListingRequired = errors.New("listing_id is required")
	// Ошибка отсутствующего идентификатора бронирования.
	ErrBookingIDRequired = errors.New("booking_id is required")
	// Ошибка некорректного количества (< 1).
	ErrQuantityInvalid = errors.New("quantity must be at least one")
	// Ошибка отсутствующей даты поездки.
	ErrTravelDateRequired = errors.New("travel_date is required")
	// Ошибка даты возврата раньше даты поездки.
	ErrReturnBeforeTravel = errors.New("return_date must not be before travel_date")
	// Ошибка отрицательной суммы.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка неподдерживаемого типа листинга.
	ErrListingTypeInvalid = errors.New("unsupported listing type")

	// ErrInsufficientCapacity — запрошенное количество превышает доступность.
	// Синхронная, видимая пользователю ошибка; никаких мутаций и событий.
	ErrInsufficientCapacity = errors.New("insufficient availability")
	// ErrDatesConflict — запрошенные даты пересекаются с активной резервацией
	// (для листингов с эксклюзивными датами).
	ErrDatesConflict = errors.New("requested dates conflict with an active reservation")

	// ErrListingNotFound возвращается, если листинг не найден в репозитории.
	ErrListingNotFound = errors.New("listing not found")
	// ErrListingVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrListingVersionConflict = errors.New("listing version conflict")
	// ErrReservationNotFound — резервация с таким booking_id не существует.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationExists — на booking_id уже есть резервация в этом листинге.
	ErrReservationExists = errors.New("reservation already exists for booking_id")
	// ErrReservationStatusInvalid — неизвестный статус резервации в переходе.
	ErrReservationStatusInvalid = errors.New("invalid reservation status")
	// ErrPaymentOutcomeInvalid — неизвестный исход оплаты в событии.
	ErrPaymentOutcomeInvalid = errors.New("invalid payment outcome")

	// ErrBillingNotFound — биллинговая запись не найдена.
	ErrBillingNotFound = errors.New("billing record not found")
	// ErrBillingDuplicate — запись на booking_id уже существует (дедупликация).
	ErrBillingDuplicate = errors.New("billing record already exists for booking_id")
	// ErrChargeStatusInvalid — неизвестный статус ответа платёжного провайдера.
	ErrChargeStatusInvalid = errors.New("invalid charge status")
	// ErrPaymentDeclined — провайдер отклонил списание (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentUnavailable — временный сбой провайдера, попытку можно повторить.
	ErrPaymentUnavailable = errors.New("payment provider unavailable")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки хранилища ключей идемпотентности HTTP-запросов.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий листинга.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrListingVersionConflict)
}

// IsCapacityError проверяет, относится ли ошибка к отказу по доступности.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) || errors.Is(err, ErrDatesConflict)
}
