package domain

import (
	"errors"
	"testing"
	"time"
)

func day(offset int) time.Time {
	return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func flightListing(available int32) Listing {
	return Listing{
		ID:        "FL-100",
		Type:      ListingTypeFlight,
		Capacity:  180,
		Available: available,
	}
}

func TestCheckAvailability_FlightSeats(t *testing.T) {
	l := flightListing(1)
	req := ReservationRequest{UserID: "u1", ListingID: l.ID, Quantity: 1, TravelDate: day(0)}

	if err := l.CheckAvailability(req); err != nil {
		t.Fatalf("expected success with one seat left: %v", err)
	}

	req.Quantity = 2
	if err := l.CheckAvailability(req); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}
}

func TestCheckAvailability_QuantityInvalid(t *testing.T) {
	l := flightListing(10)
	req := ReservationRequest{UserID: "u1", ListingID: l.ID, Quantity: 0, TravelDate: day(0)}
	if err := l.CheckAvailability(req); !errors.Is(err, ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
}

func TestCheckAvailability_HotelOverlappingRooms(t *testing.T) {
	l := Listing{
		ID:        "HT-7",
		Type:      ListingTypeHotel,
		Capacity:  2,
		Available: 2,
		Reservations: []Reservation{
			{BookingID: "BK-a", Quantity: 1, Status: ReservationStatusConfirmed, TravelDate: day(0), ReturnDate: day(3)},
			{BookingID: "BK-b", Quantity: 1, Status: ReservationStatusCancelled, TravelDate: day(0), ReturnDate: day(3)},
		},
	}

	// Одна активная комната из двух занята на пересекающиеся даты, вторая свободна.
	ok := ReservationRequest{UserID: "u1", ListingID: l.ID, Quantity: 1, TravelDate: day(1), ReturnDate: day(2)}
	if err := l.CheckAvailability(ok); err != nil {
		t.Fatalf("expected one room to remain: %v", err)
	}

	full := ok
	full.Quantity = 2
	if err := l.CheckAvailability(full); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("expected ErrInsufficientCapacity, got %v", err)
	}

	// Вне занятого интервала обе комнаты доступны.
	later := full
	later.TravelDate, later.ReturnDate = day(10), day(12)
	if err := l.CheckAvailability(later); err != nil {
		t.Fatalf("expected both rooms outside the window: %v", err)
	}
}

func TestCheckAvailability_CarDateExclusive(t *testing.T) {
	l := Listing{
		ID:        "CAR-3",
		Type:      ListingTypeCar,
		Capacity:  365,
		Available: 365,
		Reservations: []Reservation{
			{BookingID: "BK-c", Quantity: 3, Status: ReservationStatusPending, TravelDate: day(5), ReturnDate: day(8)},
		},
	}

	conflict := ReservationRequest{UserID: "u1", ListingID: l.ID, Quantity: 2, TravelDate: day(7), ReturnDate: day(9)}
	if err := l.CheckAvailability(conflict); !errors.Is(err, ErrDatesConflict) {
		t.Fatalf("expected ErrDatesConflict, got %v", err)
	}

	free := conflict
	free.TravelDate, free.ReturnDate = day(9), day(11)
	if err := l.CheckAvailability(free); err != nil {
		t.Fatalf("expected free dates to pass: %v", err)
	}
}

func TestCheckAvailability_CancelledDoesNotBlock(t *testing.T) {
	l := Listing{
		ID:        "CAR-4",
		Type:      ListingTypeCar,
		Capacity:  365,
		Available: 365,
		Reservations: []Reservation{
			{BookingID: "BK-d", Quantity: 2, Status: ReservationStatusCancelled, TravelDate: day(5), ReturnDate: day(8)},
		},
	}
	req := ReservationRequest{UserID: "u1", ListingID: l.ID, Quantity: 2, TravelDate: day(6), ReturnDate: day(7)}
	if err := l.CheckAvailability(req); err != nil {
		t.Fatalf("cancelled reservation must not block dates: %v", err)
	}
}

func TestReservationRequest_ValidateInvariants(t *testing.T) {
	req := ReservationRequest{}
	errs := req.ValidateInvariants()
	if len(errs) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(errs), errs)
	}

	req = ReservationRequest{
		UserID:     "u1",
		ListingID:  "FL-100",
		Quantity:   1,
		TravelDate: day(3),
		ReturnDate: day(1),
	}
	errs = req.ValidateInvariants()
	if len(errs) != 1 || !errors.Is(errs[0], ErrReturnBeforeTravel) {
		t.Fatalf("expected ErrReturnBeforeTravel only, got %v", errs)
	}
}

func TestListing_FindReservation(t *testing.T) {
	l := flightListing(10)
	l.Reservations = []Reservation{{BookingID: "BK-1", Status: ReservationStatusPending}}

	if _, ok := l.FindReservation("BK-1"); !ok {
		t.Fatal("expected reservation to be found")
	}
	if _, ok := l.FindReservation("BK-2"); ok {
		t.Fatal("expected lookup miss")
	}
}
