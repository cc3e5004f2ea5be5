package postgres

import (
	"testing"

	"github.com/travelmesh/bms/internal/domain"
)

func TestOutboxRepository_PostgresEnqueuePullAndAck(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	first, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "booking",
		AggregateID:   "booking-1",
		EventType:     "booking.created",
		Payload:       []byte(`{"booking_id":"booking-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if first.ID == "" {
		t.Fatal("enqueue must assign an id")
	}
	second, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "booking",
		AggregateID:   "booking-2",
		EventType:     "payment.processed",
		Payload:       []byte(`{"booking_id":"booking-2"}`),
	})
	if err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	pulled, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pulled) != 2 || pulled[0].ID != first.ID || pulled[1].ID != second.ID {
		t.Fatalf("expected FIFO pull, got %+v", pulled)
	}

	// Pulled messages are held as processing; a concurrent worker sees nothing.
	again, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("second pull: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty second pull, got %+v", again)
	}

	if err := repo.MarkSent(first.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := repo.MarkFailed(second.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	retry, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull after fail: %v", err)
	}
	if len(retry) != 1 || retry[0].ID != second.ID {
		t.Fatalf("failed message must return to the queue, got %+v", retry)
	}
}

func TestOutboxRepository_PostgresMarkUnknownMessage(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOutboxRepository(store)

	if err := repo.MarkSent("missing-id"); err == nil {
		t.Fatal("expected error for unknown outbox message")
	}
}
