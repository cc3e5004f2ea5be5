package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/travelmesh/bms/internal/domain"
)

// OutboxRepository реализует transactional outbox поверх PostgreSQL.
// PullPending захватывает пачку сообщений через FOR UPDATE SKIP LOCKED,
// поэтому несколько воркеров не публикуют одно и то же событие дважды.
type OutboxRepository struct {
	store *Store
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)

// NewOutboxRepository создаёт репозиторий outbox-сообщений.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Enqueue сохраняет событие со статусом pending.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6, $6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("insert outbox message: %w", err)
	}
	return msg, nil
}

// PullPending помечает пачку pending-сообщений как processing и возвращает их
// в порядке создания. Сообщения, захваченные другим воркером, пропускаются.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox pull tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		result = append(result, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	rows.Close()

	if len(ids) > 0 {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE outbox_messages
				SET status = 'processing', attempt_count = attempt_count + 1, updated_at = NOW()
				WHERE id = $1
			`, id); err != nil {
				return nil, fmt.Errorf("mark outbox message processing: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox pull tx: %w", err)
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самого старого pending-сообщения.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status IN ('pending', 'processing')
	`).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("query outbox stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time
	}
	return stats, nil
}

// MarkSent помечает сообщение как опубликованное.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.setStatus(id, "sent", "")
}

// MarkFailed возвращает сообщение в pending для повторной публикации.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.setStatus(id, "pending", "publish failed")
}

func (r *OutboxRepository) setStatus(id, status, lastError string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	result, err := r.store.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`, status, lastError, id)
	if err != nil {
		return fmt.Errorf("update outbox message status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox status rows affected: %w", err)
	}
	if affected == 0 {
		return errors.New("outbox message not found: " + id)
	}
	return nil
}
