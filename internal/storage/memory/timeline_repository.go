package memory

import (
	"sort"
	"sync"

	"github.com/travelmesh/bms/internal/domain"
)

// timelineRepositoryInMemory хранит события жизненного цикла бронирования
// в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в хранилище.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.BookingID] = append(r.events[event.BookingID], event)

	sort.Slice(r.events[event.BookingID], func(i, j int) bool {
		return r.events[event.BookingID][i].Occurred.Before(r.events[event.BookingID][j].Occurred)
	})

	return nil
}

// List возвращает события бронирования в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(bookingID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[bookingID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
