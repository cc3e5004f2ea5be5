package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

// TimelineRepository хранит события жизненного цикла бронирования для аудита.
type TimelineRepository struct {
	store *Store
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)

// NewTimelineRepository создаёт репозиторий таймлайна.
func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{store: store}
}

// Append добавляет событие в таймлайн бронирования.
func (r *TimelineRepository) Append(event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO timeline_events (booking_id, event_type, reason, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, event.BookingID, event.Type, event.Reason, occurred)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

// List возвращает события бронирования в порядке возникновения.
func (r *TimelineRepository) List(bookingID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT booking_id, event_type, reason, occurred_at
		FROM timeline_events
		WHERE booking_id = $1
		ORDER BY occurred_at, id
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("query timeline events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(&event.BookingID, &event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline events: %w", err)
	}
	return result, nil
}
