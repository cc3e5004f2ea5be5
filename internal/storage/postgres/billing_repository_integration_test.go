package postgres

import (
	"errors"
	"testing"

	"github.com/travelmesh/bms/internal/domain"
)

func sampleBillingRecord(id, bookingID, userID string) domain.BillingRecord {
	return domain.BillingRecord{
		ID:            id,
		BookingID:     bookingID,
		UserID:        userID,
		BookingType:   domain.ListingTypeHotel,
		AmountMinor:   45900,
		PaymentMethod: "card",
		Status:        domain.TransactionStatusCompleted,
	}
}

func TestBillingRepository_PostgresCreateAndDeduplicate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewBillingRepository(store)

	if err := repo.Create(sampleBillingRecord("txn-1", "booking-1", "user-1")); err != nil {
		t.Fatalf("create record: %v", err)
	}

	// A second record for the same booking_id is the redelivery case and must
	// surface as a duplicate, not as a second charge.
	err := repo.Create(sampleBillingRecord("txn-2", "booking-1", "user-1"))
	if !errors.Is(err, domain.ErrBillingDuplicate) {
		t.Fatalf("expected ErrBillingDuplicate, got %v", err)
	}

	got, err := repo.GetByBookingID("booking-1")
	if err != nil {
		t.Fatalf("get by booking id: %v", err)
	}
	if got.ID != "txn-1" || got.Status != domain.TransactionStatusCompleted {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.GetByBookingID("booking-unknown"); !errors.Is(err, domain.ErrBillingNotFound) {
		t.Fatalf("expected ErrBillingNotFound, got %v", err)
	}
}

func TestBillingRepository_PostgresListByUser(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewBillingRepository(store)

	for _, rec := range []domain.BillingRecord{
		sampleBillingRecord("txn-1", "booking-1", "user-1"),
		sampleBillingRecord("txn-2", "booking-2", "user-1"),
		sampleBillingRecord("txn-3", "booking-3", "user-2"),
	} {
		if err := repo.Create(rec); err != nil {
			t.Fatalf("create %s: %v", rec.ID, err)
		}
	}

	records, err := repo.ListByUser("user-1", 0)
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for user-1, got %d", len(records))
	}

	limited, err := repo.ListByUser("user-1", 1)
	if err != nil {
		t.Fatalf("list by user with limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 record with limit, got %d", len(limited))
	}
}
