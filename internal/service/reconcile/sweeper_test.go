package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/service/reservation"
	"github.com/travelmesh/bms/internal/storage/memory"
)

func newSweeperFixture(t *testing.T) (*Sweeper, *reservation.Manager, domain.ListingRepository) {
	t.Helper()

	listings := memory.NewListingRepository()
	manager := reservation.NewManager(listings, memory.NewOutboxRepository())
	sweeper := NewSweeper(listings, manager, WithDeadline(15*time.Minute), WithBatchSize(10))
	return sweeper, manager, listings
}

func seedPending(t *testing.T, listings domain.ListingRepository, bookingID string, age time.Duration) {
	t.Helper()

	err := listings.Reserve("flight-1", domain.Reservation{
		BookingID:  bookingID,
		UserID:     "user-1",
		Quantity:   1,
		TravelDate: time.Now().UTC().Add(48 * time.Hour),
		CreatedAt:  time.Now().UTC().Add(-age),
	})
	if err != nil {
		t.Fatalf("reserve %s: %v", bookingID, err)
	}
}

func TestSweeper_ResolvesStalePendingAsFailed(t *testing.T) {
	sweeper, manager, listings := newSweeperFixture(t)

	if err := listings.Create(domain.Listing{
		ID: "flight-1", Type: domain.ListingTypeFlight,
		Capacity: 5, Available: 5, PriceMinor: 1000, Currency: "USD",
	}); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	seedPending(t, listings, "booking-stale", time.Hour)
	seedPending(t, listings, "booking-fresh", time.Minute)

	resolved, err := sweeper.SweepOnce(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 resolved reservation, got %d", resolved)
	}

	stale, err := manager.GetBooking("booking-stale")
	if err != nil {
		t.Fatalf("get stale booking: %v", err)
	}
	if stale.Status != domain.ReservationStatusCancelled {
		t.Fatalf("stale booking must be cancelled, got %s", stale.Status)
	}

	fresh, err := manager.GetBooking("booking-fresh")
	if err != nil {
		t.Fatalf("get fresh booking: %v", err)
	}
	if fresh.Status != domain.ReservationStatusPending {
		t.Fatalf("fresh booking must stay pending, got %s", fresh.Status)
	}

	// The hold of the resolved reservation is returned.
	listing, err := listings.Get("flight-1")
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.Available != 4 {
		t.Fatalf("expected available=4 after compensation, got %d", listing.Available)
	}
}

func TestSweeper_LateOutcomeAfterSweepIsNoOp(t *testing.T) {
	sweeper, manager, listings := newSweeperFixture(t)

	if err := listings.Create(domain.Listing{
		ID: "flight-1", Type: domain.ListingTypeFlight,
		Capacity: 2, Available: 2, PriceMinor: 1000, Currency: "USD",
	}); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	seedPending(t, listings, "booking-late", time.Hour)

	if _, err := sweeper.SweepOnce(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// The real outcome arrives after the sweep already cancelled the booking.
	if err := manager.ApplyPaymentOutcome(context.Background(), "booking-late", domain.PaymentOutcomeCompleted, ""); err != nil {
		t.Fatalf("late outcome: %v", err)
	}

	got, err := manager.GetBooking("booking-late")
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.Status != domain.ReservationStatusCancelled {
		t.Fatalf("terminal state must win over late outcome, got %s", got.Status)
	}

	listing, _ := listings.Get("flight-1")
	if listing.Available != 2 {
		t.Fatalf("counter must not move on late outcome, available=%d", listing.Available)
	}
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	sweeper, _, _ := newSweeperFixture(t)
	sweeper.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancel")
	}
}
