package postgres

import (
	"testing"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)

	base := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	events := []domain.TimelineEvent{
		{BookingID: "booking-1", Type: "booking.created", Occurred: base},
		{BookingID: "booking-1", Type: "payment.failed", Reason: "card declined", Occurred: base.Add(time.Second)},
		{BookingID: "booking-2", Type: "booking.created", Occurred: base},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append %s: %v", event.Type, err)
		}
	}

	got, err := repo.List("booking-1")
	if err != nil {
		t.Fatalf("list timeline: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != "booking.created" || got[1].Type != "payment.failed" {
		t.Fatalf("events out of order: %+v", got)
	}
	if got[1].Reason != "card declined" {
		t.Fatalf("reason lost: %+v", got[1])
	}

	empty, err := repo.List("booking-unknown")
	if err != nil {
		t.Fatalf("list unknown booking: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty timeline, got %+v", empty)
	}
}
