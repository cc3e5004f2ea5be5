package domain

import "time"

// ReservationStatus описывает жизненный цикл резервации.
type ReservationStatus string

const (
	// ReservationStatusPending — резервация создана, исход оплаты ещё не известен.
	ReservationStatusPending ReservationStatus = "pending"
	// ReservationStatusConfirmed — оплата прошла, холд стал постоянным.
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	// ReservationStatusCancelled — оплата не прошла, холд возвращён в счётчик.
	ReservationStatusCancelled ReservationStatus = "cancelled"
	// ReservationStatusCompleted — поездка состоялась (вне цикла саги).
	ReservationStatusCompleted ReservationStatus = "completed"
)

// Terminal сообщает, допускает ли статус дальнейшие переходы в рамках саги.
func (s ReservationStatus) Terminal() bool {
	switch s {
	case ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusCompleted:
		return true
	default:
		return false
	}
}

// PaymentOutcome — терминальный исход расчёта, приходящий событием payment.processed.
type PaymentOutcome string

const (
	PaymentOutcomeCompleted PaymentOutcome = "completed"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// Valid проверяет, что исход относится к поддерживаемым значениям.
func (o PaymentOutcome) Valid() bool {
	return o == PaymentOutcomeCompleted || o == PaymentOutcomeFailed
}

// Reservation — запись бронирования, встроенная в листинг. Записи никогда
// не удаляются и служат аудиторским следом.
type Reservation struct {
	BookingID     string
	ListingID     string
	ListingType   ListingType
	UserID        string
	Quantity      int32
	TravelDate    time.Time
	ReturnDate    time.Time // нулевое значение — не задана
	AmountMinor   int64
	PaymentMethod string
	Status        ReservationStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ReservationTransition — результат применения исхода оплаты к текущему
// состоянию. Явная функция перехода вместо условий по месту, чтобы
// no-op/идемпотентные ветки были проверяемы.
type ReservationTransition struct {
	// Next — статус после перехода.
	Next ReservationStatus
	// NoOp выставлен, если резервация уже в терминальном статусе и событие
	// является повторной доставкой.
	NoOp bool
	// RestoreHold выставлен, если счётчик доступности нужно вернуть на quantity.
	RestoreHold bool
}

// TransitionReservation вычисляет переход состояния резервации по исходу
// оплаты. Разрешены только pending→confirmed и pending→cancelled; для
// терминальных статусов возвращается no-op.
func TransitionReservation(current ReservationStatus, outcome PaymentOutcome) (ReservationTransition, error) {
	if !outcome.Valid() {
		return ReservationTransition{}, ErrPaymentOutcomeInvalid
	}

	if current.Terminal() {
		return ReservationTransition{Next: current, NoOp: true}, nil
	}
	if current != ReservationStatusPending {
		return ReservationTransition{}, ErrReservationStatusInvalid
	}

	switch outcome {
	case PaymentOutcomeCompleted:
		return ReservationTransition{Next: ReservationStatusConfirmed}, nil
	default:
		return ReservationTransition{Next: ReservationStatusCancelled, RestoreHold: true}, nil
	}
}
