package domain

import "time"

// ListingType определяет тип площадки бронирования.
type ListingType string

const (
	// ListingTypeFlight — авиарейс, единица доступности — место.
	ListingTypeFlight ListingType = "flight"
	// ListingTypeHotel — отель, единица доступности — номер.
	ListingTypeHotel ListingType = "hotel"
	// ListingTypeCar — прокат автомобиля, доступность определяется датами.
	ListingTypeCar ListingType = "car"
)

// Valid проверяет, что тип листинга поддерживается.
func (t ListingType) Valid() bool {
	switch t {
	case ListingTypeFlight, ListingTypeHotel, ListingTypeCar:
		return true
	default:
		return false
	}
}

// Listing агрегирует предложение (рейс/отель/автомобиль), его счётчик
// доступности и список резерваций. Счётчик и список мутируются только
// внутри одной транзакции владеющего репозитория.
type Listing struct {
	ID           string
	Type         ListingType
	Name         string
	Capacity     int32
	Available    int32
	PriceMinor   int64
	Currency     string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Reservations []Reservation
}

// ReservationRequest описывает входящий запрос на бронирование.
// Валидация формы запроса выполняется на HTTP-границе; здесь проверяются
// только доменные инварианты.
type ReservationRequest struct {
	UserID        string
	ListingID     string
	Quantity      int32
	TravelDate    time.Time
	ReturnDate    time.Time // нулевое значение — дата возврата не задана
	PaymentMethod string
}

// ValidateInvariants проверяет базовые инварианты запроса и возвращает список замечаний.
func (r *ReservationRequest) ValidateInvariants() []error {
	var errs []error

	if r.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if r.ListingID == "" {
		errs = append(errs, ErrListingRequired)
	}
	if r.Quantity < 1 {
		errs = append(errs, ErrQuantityInvalid)
	}
	if r.TravelDate.IsZero() {
		errs = append(errs, ErrTravelDateRequired)
	}
	if !r.ReturnDate.IsZero() && r.ReturnDate.Before(r.TravelDate) {
		errs = append(errs, ErrReturnBeforeTravel)
	}

	return errs
}

// CheckAvailability решает, может ли листинг принять запрос. Проверка
// специфична для типа: для рейсов достаточно счётчика мест, для отелей
// дополнительно считаются пересекающиеся по датам номера, для автомобилей
// даты эксклюзивны. Счётчик остаётся общим оптимистичным холдом для всех
// типов; его неотрицательность обеспечивает условный декремент в хранилище.
func (l *Listing) CheckAvailability(req ReservationRequest) error {
	if req.Quantity < 1 {
		return ErrQuantityInvalid
	}
	if l.Available < req.Quantity {
		return ErrInsufficientCapacity
	}

	switch l.Type {
	case ListingTypeFlight:
		return nil
	case ListingTypeHotel:
		occupied := l.overlappingQuantity(req.TravelDate, req.ReturnDate)
		if occupied+req.Quantity > l.Capacity {
			return ErrInsufficientCapacity
		}
		return nil
	case ListingTypeCar:
		if l.overlappingQuantity(req.TravelDate, req.ReturnDate) > 0 {
			return ErrDatesConflict
		}
		return nil
	default:
		return ErrListingTypeInvalid
	}
}

// overlappingQuantity суммирует quantity активных (не отменённых) резерваций,
// пересекающихся с запрошенным интервалом дат.
func (l *Listing) overlappingQuantity(from, to time.Time) int32 {
	if to.IsZero() {
		to = from
	}

	var total int32
	for _, res := range l.Reservations {
		if res.Status == ReservationStatusCancelled {
			continue
		}
		resTo := res.ReturnDate
		if resTo.IsZero() {
			resTo = res.TravelDate
		}
		// Интервалы считаются включительными с обеих сторон.
		if !res.TravelDate.After(to) && !from.After(resTo) {
			total += res.Quantity
		}
	}
	return total
}

// FindReservation возвращает резервацию по booking_id из встроенного списка.
func (l *Listing) FindReservation(bookingID string) (Reservation, bool) {
	for _, res := range l.Reservations {
		if res.BookingID == bookingID {
			return res, true
		}
	}
	return Reservation{}, false
}
