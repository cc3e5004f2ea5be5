package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

// BillingRepository реализует domain.BillingRepository поверх PostgreSQL.
// Уникальный индекс по booking_id делает хранилище источником истины для
// дедупликации платежей при повторной доставке booking.created.
type BillingRepository struct {
	store *Store
}

var _ domain.BillingRepository = (*BillingRepository)(nil)

// NewBillingRepository создаёт репозиторий биллинговых записей.
func NewBillingRepository(store *Store) *BillingRepository {
	return &BillingRepository{store: store}
}

// Create сохраняет запись; повторная вставка по тому же booking_id
// возвращает ErrBillingDuplicate.
func (r *BillingRepository) Create(record domain.BillingRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO billing_records (id, booking_id, user_id, booking_type, amount_minor, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.BookingID, record.UserID, string(record.BookingType),
		record.AmountMinor, record.PaymentMethod, string(record.Status),
		record.CreatedAt, record.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBillingDuplicate
		}
		return fmt.Errorf("insert billing record: %w", err)
	}
	return nil
}

// GetByBookingID возвращает запись по ключу дедупликации.
func (r *BillingRepository) GetByBookingID(bookingID string) (domain.BillingRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return scanBillingRecord(r.store.db.QueryRowContext(ctx, `
		SELECT id, booking_id, user_id, booking_type, amount_minor, payment_method, status, created_at, updated_at
		FROM billing_records
		WHERE booking_id = $1
	`, bookingID))
}

// ListByUser возвращает записи пользователя, свежие первыми.
func (r *BillingRepository) ListByUser(userID string, limit int) ([]domain.BillingRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, booking_id, user_id, booking_type, amount_minor, payment_method, status, created_at, updated_at
		FROM billing_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query billing records by user: %w", err)
	}
	defer rows.Close()

	result := make([]domain.BillingRecord, 0)
	for rows.Next() {
		record, err := scanBillingRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing records: %w", err)
	}
	return result, nil
}

func scanBillingRecord(row rowScanner) (domain.BillingRecord, error) {
	var (
		record      domain.BillingRecord
		bookingType string
		status      string
	)
	err := row.Scan(&record.ID, &record.BookingID, &record.UserID, &bookingType,
		&record.AmountMinor, &record.PaymentMethod, &status, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BillingRecord{}, domain.ErrBillingNotFound
	}
	if err != nil {
		return domain.BillingRecord{}, fmt.Errorf("scan billing record: %w", err)
	}
	record.BookingType = domain.ListingType(bookingType)
	record.Status = domain.TransactionStatus(status)
	return record, nil
}
