package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

// billingRepositoryInMemory — in-memory реализация BillingRepository.
// Карта по booking_id обеспечивает инвариант «не более одной записи
// на бронирование» так же, как уникальный индекс в PostgreSQL.
type billingRepositoryInMemory struct {
	mu        sync.RWMutex
	byBooking map[string]domain.BillingRecord
}

// NewBillingRepository возвращает in-memory репозиторий биллинговых записей.
func NewBillingRepository() domain.BillingRepository {
	return &billingRepositoryInMemory{
		byBooking: make(map[string]domain.BillingRecord),
	}
}

// Create сохраняет запись; дубликат booking_id возвращает ErrBillingDuplicate.
func (r *billingRepositoryInMemory) Create(record domain.BillingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byBooking[record.BookingID]; exists {
		return domain.ErrBillingDuplicate
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	r.byBooking[record.BookingID] = record
	return nil
}

// GetByBookingID возвращает запись по ключу дедупликации.
func (r *billingRepositoryInMemory) GetByBookingID(bookingID string) (domain.BillingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.byBooking[bookingID]
	if !ok {
		return domain.BillingRecord{}, domain.ErrBillingNotFound
	}
	return record, nil
}

// ListByUser возвращает записи пользователя, новые первыми.
func (r *billingRepositoryInMemory) ListByUser(userID string, limit int) ([]domain.BillingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.BillingRecord, 0)
	for _, record := range r.byBooking {
		if record.UserID == userID {
			result = append(result, record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

var _ domain.BillingRepository = (*billingRepositoryInMemory)(nil)
