package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

// ListingRepository реализует domain.ListingRepository поверх PostgreSQL.
// Резервирование и финализация исхода оплаты выполняются транзакциями:
// строка листинга захватывается FOR UPDATE, а декремент счётчика остаётся
// условным (available >= quantity), поэтому овербукинг невозможен даже при
// конкурентных подключениях нескольких инстансов сервиса.
type ListingRepository struct {
	store *Store
}

var _ domain.ListingRepository = (*ListingRepository)(nil)

// NewListingRepository создаёт репозиторий листингов.
func NewListingRepository(store *Store) *ListingRepository {
	return &ListingRepository{store: store}
}

// Create сохраняет новый листинг.
func (r *ListingRepository) Create(listing domain.Listing) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = now

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO listings (id, listing_type, name, capacity, available, price_minor, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, listing.ID, string(listing.Type), listing.Name, listing.Capacity, listing.Available,
		listing.PriceMinor, listing.Currency, listing.Version, listing.CreatedAt, listing.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrListingVersionConflict
		}
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// Get возвращает листинг вместе с его резервациями.
func (r *ListingRepository) Get(id string) (domain.Listing, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	listing, err := scanListing(r.store.db.QueryRowContext(ctx, `
		SELECT id, listing_type, name, capacity, available, price_minor, currency, version, created_at, updated_at
		FROM listings
		WHERE id = $1
	`, id))
	if err != nil {
		return domain.Listing{}, err
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT booking_id, listing_id, listing_type, user_id, quantity, travel_date, return_date,
		       amount_minor, payment_method, status, created_at, updated_at
		FROM reservations
		WHERE listing_id = $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	listing.Reservations, err = collectReservations(rows)
	if err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

// Reserve атомарно проверяет доступность, добавляет pending-резервацию и
// уменьшает счётчик. Строка листинга блокируется на время транзакции, чтобы
// проверки по датам (отель, автомобиль) видели согласованный набор резерваций.
func (r *ListingRepository) Reserve(listingID string, res domain.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reserve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	listing, err := scanListing(tx.QueryRowContext(ctx, `
		SELECT id, listing_type, name, capacity, available, price_minor, currency, version, created_at, updated_at
		FROM listings
		WHERE id = $1
		FOR UPDATE
	`, listingID))
	if err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT booking_id, listing_id, listing_type, user_id, quantity, travel_date, return_date,
		       amount_minor, payment_method, status, created_at, updated_at
		FROM reservations
		WHERE listing_id = $1 AND status <> $2
	`, listingID, string(domain.ReservationStatusCancelled))
	if err != nil {
		return fmt.Errorf("query active reservations: %w", err)
	}
	listing.Reservations, err = collectReservations(rows)
	rows.Close()
	if err != nil {
		return err
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

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reservations (booking_id, listing_id, listing_type, user_id, quantity, travel_date, return_date,
		                          amount_minor, payment_method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, res.BookingID, res.ListingID, string(res.ListingType), res.UserID, res.Quantity,
		res.TravelDate, nullableTime(res.ReturnDate), res.AmountMinor, res.PaymentMethod,
		string(res.Status), res.CreatedAt, res.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReservationExists
		}
		return fmt.Errorf("insert reservation: %w", err)
	}

	// Условный декремент остаётся последней линией защиты счётчика,
	// даже при том, что строка уже захвачена FOR UPDATE.
	result, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET available = available - $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND available >= $1
	`, res.Quantity, now, listingID)
	if err != nil {
		return fmt.Errorf("decrement availability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement availability rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrInsufficientCapacity
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reserve tx: %w", err)
	}
	return nil
}

// FindReservation возвращает резервацию по booking_id.
func (r *ListingRepository) FindReservation(bookingID string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	return scanReservation(r.store.db.QueryRowContext(ctx, `
		SELECT booking_id, listing_id, listing_type, user_id, quantity, travel_date, return_date,
		       amount_minor, payment_method, status, created_at, updated_at
		FROM reservations
		WHERE booking_id = $1
	`, bookingID))
}

// FinalizeReservation применяет исход оплаты к резервации и при компенсации
// возвращает холд в счётчик одной транзакцией. Повторная доставка того же
// исхода видит терминальный статус и завершается no-op с Applied=false.
func (r *ListingRepository) FinalizeReservation(bookingID string, outcome domain.PaymentOutcome) (domain.FinalizeResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("begin finalize tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := scanReservation(tx.QueryRowContext(ctx, `
		SELECT booking_id, listing_id, listing_type, user_id, quantity, travel_date, return_date,
		       amount_minor, payment_method, status, created_at, updated_at
		FROM reservations
		WHERE booking_id = $1
		FOR UPDATE
	`, bookingID))
	if err != nil {
		return domain.FinalizeResult{}, err
	}

	transition, err := domain.TransitionReservation(res.Status, outcome)
	if err != nil {
		return domain.FinalizeResult{}, err
	}
	if transition.NoOp {
		return domain.FinalizeResult{Reservation: res}, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1, updated_at = $2
		WHERE booking_id = $3
	`, string(transition.Next), now, bookingID); err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("update reservation status: %w", err)
	}

	if transition.RestoreHold {
		if _, err := tx.ExecContext(ctx, `
			UPDATE listings
			SET available = available + $1, version = version + 1, updated_at = $2
			WHERE id = $3
		`, res.Quantity, now, res.ListingID); err != nil {
			return domain.FinalizeResult{}, fmt.Errorf("restore availability: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE listings
			SET version = version + 1, updated_at = $1
			WHERE id = $2
		`, now, res.ListingID); err != nil {
			return domain.FinalizeResult{}, fmt.Errorf("bump listing version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("commit finalize tx: %w", err)
	}

	res.Status = transition.Next
	res.UpdatedAt = now
	return domain.FinalizeResult{
		Reservation: res,
		Applied:     true,
		Restored:    transition.RestoreHold,
	}, nil
}

// ListStalePending возвращает pending-резервации старше порога.
func (r *ListingRepository) ListStalePending(olderThan time.Time, limit int) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT booking_id, listing_id, listing_type, user_id, quantity, travel_date, return_date,
		       amount_minor, payment_method, status, created_at, updated_at
		FROM reservations
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, string(domain.ReservationStatusPending), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending reservations: %w", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (domain.Listing, error) {
	var (
		listing     domain.Listing
		listingType string
	)
	err := row.Scan(&listing.ID, &listingType, &listing.Name, &listing.Capacity, &listing.Available,
		&listing.PriceMinor, &listing.Currency, &listing.Version, &listing.CreatedAt, &listing.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("scan listing: %w", err)
	}
	listing.Type = domain.ListingType(listingType)
	return listing, nil
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var (
		res         domain.Reservation
		listingType string
		status      string
		returnDate  sql.NullTime
	)
	err := row.Scan(&res.BookingID, &res.ListingID, &listingType, &res.UserID, &res.Quantity,
		&res.TravelDate, &returnDate, &res.AmountMinor, &res.PaymentMethod, &status,
		&res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	res.ListingType = domain.ListingType(listingType)
	res.Status = domain.ReservationStatus(status)
	if returnDate.Valid {
		res.ReturnDate = returnDate.Time
	}
	return res, nil
}

func collectReservations(rows *sql.Rows) ([]domain.Reservation, error) {
	result := make([]domain.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return result, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
