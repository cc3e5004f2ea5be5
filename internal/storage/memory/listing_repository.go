package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

// listingRepositoryInMemory — in-memory реализация ListingRepository.
// Мьютекс играет роль транзакции хранилища: проверка доступности,
// добавление резервации и декремент счётчика видны снаружи как одна
// атомарная операция.
type listingRepositoryInMemory struct {
	mu       sync.RWMutex
	items    map[string]domain.Listing
	bookings map[string]string // booking_id → listing_id
}

// NewListingRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewListingRepository() domain.ListingRepository {
	return &listingRepositoryInMemory{
		items:    make(map[string]domain.Listing),
		bookings: make(map[string]string),
	}
}

// Create сохраняет новый листинг, если ID ещё не занят.
func (r *listingRepositoryInMemory) Create(listing domain.Listing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[listing.ID]; exists {
		return domain.ErrListingVersionConflict
	}
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

// Get возвращает листинг с резервациями или ErrListingNotFound.
func (r *listingRepositoryInMemory) Get(id string) (domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listing, ok := r.items[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return cloneListing(listing), nil
}

// Reserve атомарно проверяет доступность, добавляет pending-резервацию и
// уменьшает счётчик. При любом отказе состояние листинга не меняется.
func (r *listingRepositoryInMemory) Reserve(listingID string, res domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.items[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	if _, exists := r.bookings[res.BookingID]; exists {
		return domain.ErrReservationExists
	}

	req := domain.ReservationRequest{
		UserID:     res.UserID,
		ListingID:  listingID,
		Quantity:   res.Quantity,
		TravelDate: res.TravelDate,
		ReturnDate: res.ReturnDate,
	}
	if err := listing.CheckAvailability(req); err != nil {
		return err
	}

	now := time.Now().UTC()
	res.ListingID = listingID
	res.ListingType = listing.Type
	res.Status = domain.ReservationStatusPending
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now

	listing.Reservations = append(listing.Reservations, res)
	listing.Available -= res.Quantity
	listing.Version++
	listing.UpdatedAt = now

	r.items[listingID] = listing
	r.bookings[res.BookingID] = listingID
	return nil
}

// FindReservation возвращает резервацию по booking_id.
func (r *listingRepositoryInMemory) FindReservation(bookingID string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listingID, ok := r.bookings[bookingID]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	listing := r.items[listingID]
	res, ok := listing.FindReservation(bookingID)
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return res, nil
}

// FinalizeReservation применяет исход оплаты; повторная доставка того же
// события даёт Applied=false без изменения счётчика.
func (r *listingRepositoryInMemory) FinalizeReservation(bookingID string, outcome domain.PaymentOutcome) (domain.FinalizeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listingID, ok := r.bookings[bookingID]
	if !ok {
		return domain.FinalizeResult{}, domain.ErrReservationNotFound
	}
	listing := r.items[listingID]

	for i := range listing.Reservations {
		res := &listing.Reservations[i]
		if res.BookingID != bookingID {
			continue
		}

		transition, err := domain.TransitionReservation(res.Status, outcome)
		if err != nil {
			return domain.FinalizeResult{}, err
		}
		if transition.NoOp {
			return domain.FinalizeResult{Reservation: *res}, nil
		}

		now := time.Now().UTC()
		res.Status = transition.Next
		res.UpdatedAt = now
		if transition.RestoreHold {
			listing.Available += res.Quantity
		}
		listing.Version++
		listing.UpdatedAt = now
		r.items[listingID] = listing

		return domain.FinalizeResult{
			Reservation: *res,
			Applied:     true,
			Restored:    transition.RestoreHold,
		}, nil
	}

	return domain.FinalizeResult{}, domain.ErrReservationNotFound
}

// ListStalePending возвращает pending-резервации старше порога, упорядоченные
// по возрасту.
func (r *listingRepositoryInMemory) ListStalePending(olderThan time.Time, limit int) ([]domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, listing := range r.items {
		for _, res := range listing.Reservations {
			if res.Status == domain.ReservationStatusPending && res.CreatedAt.Before(olderThan) {
				result = append(result, res)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func cloneListing(src domain.Listing) domain.Listing {
	dst := src
	dst.Reservations = make([]domain.Reservation, len(src.Reservations))
	copy(dst.Reservations, src.Reservations)
	return dst
}

var _ domain.ListingRepository = (*listingRepositoryInMemory)(nil)
