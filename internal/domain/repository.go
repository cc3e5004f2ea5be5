package domain

import "time"

// FinalizeResult — итог применения исхода оплаты к резервации.
type FinalizeResult struct {
	Reservation Reservation
	// Applied выставлен, если переход действительно произошёл; false означает
	// идемпотентный no-op по уже терминальной резервации.
	Applied bool
	// Restored выставлен, если счётчик доступности был возвращён на quantity.
	Restored bool
}

// ListingRepository описывает требования к хранилищу листингов и встроенных
// в них резерваций. Счётчик доступности сериализуется атомарным условным
// обновлением на уровне хранилища, а не блокировками в приложении.
type ListingRepository interface {
	// Create сохраняет новый листинг. Возвращает ошибку, если ID уже занят.
	Create(listing Listing) error
	// Get возвращает листинг с резервациями или ErrListingNotFound.
	Get(id string) (Listing, error)
	// Reserve атомарно проверяет доступность, добавляет резервацию со
	// статусом pending и уменьшает счётчик на quantity. Обе мутации
	// фиксируются одной транзакцией; при отказе по доступности мутаций нет.
	Reserve(listingID string, res Reservation) error
	// FindReservation возвращает резервацию по booking_id или ErrReservationNotFound.
	FindReservation(bookingID string) (Reservation, error)
	// FinalizeReservation применяет TransitionReservation к резервации и,
	// если переход требует компенсации, возвращает холд в счётчик — в одной
	// транзакции. Повторная доставка того же исхода даёт Applied=false.
	FinalizeReservation(bookingID string, outcome PaymentOutcome) (FinalizeResult, error)
	// ListStalePending возвращает резервации, остающиеся pending дольше
	// порога (для reconciliation sweep).
	ListStalePending(olderThan time.Time, limit int) ([]Reservation, error)
}

// BillingRepository описывает хранилище биллинговых записей.
type BillingRepository interface {
	// Create сохраняет запись; на booking_id допускается не более одной,
	// дубликат возвращает ErrBillingDuplicate.
	Create(record BillingRecord) error
	// GetByBookingID возвращает запись по ключу дедупликации или ErrBillingNotFound.
	GetByBookingID(bookingID string) (BillingRecord, error)
	// ListByUser возвращает записи пользователя, ограничивая выборку limit (если >0).
	ListByUser(userID string, limit int) ([]BillingRecord, error)
}
