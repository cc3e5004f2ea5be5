package memory_test

import (
	"testing"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/storage/memory"
)

func TestOutboxRepository_EnqueuePullMark(t *testing.T) {
	repo := memory.NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "booking",
		AggregateID:   "BK-1",
		EventType:     "booking.created",
		Payload:       []byte(`{"booking_id":"BK-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("expected generated id")
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 1 || pending[0].AggregateID != "BK-1" {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	if err := repo.MarkSent(msg.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	pending, _ = repo.PullPending(10)
	if len(pending) != 0 {
		t.Fatalf("expected empty backlog after send, got %d", len(pending))
	}
}

func TestOutboxRepository_PullPreservesOrder(t *testing.T) {
	repo := memory.NewOutboxRepository()
	for _, id := range []string{"first", "second", "third"} {
		if _, err := repo.Enqueue(domain.OutboxMessage{ID: id, AggregateID: "BK-1", EventType: "booking.created"}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	pending, err := repo.PullPending(10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 3 || pending[0].ID != "first" || pending[2].ID != "third" {
		t.Fatalf("enqueue order lost: %+v", pending)
	}
}

func TestOutboxRepository_Stats(t *testing.T) {
	repo := memory.NewOutboxRepository()
	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 0 {
		t.Fatalf("expected empty backlog, got %d", stats.PendingCount)
	}

	if _, err := repo.Enqueue(domain.OutboxMessage{AggregateID: "BK-1", EventType: "booking.created"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	stats, _ = repo.Stats()
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_MarkUnknown(t *testing.T) {
	repo := memory.NewOutboxRepository()
	if err := repo.MarkSent("ghost"); err != domain.ErrOutboxPublish {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
}
