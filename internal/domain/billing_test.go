package domain

import (
	"errors"
	"testing"
)

func TestSettleOutcome(t *testing.T) {
	status, outcome, err := SettleOutcome(ChargeApproved)
	if err != nil {
		t.Fatalf("settle approved: %v", err)
	}
	if status != TransactionStatusCompleted || outcome != PaymentOutcomeCompleted {
		t.Fatalf("unexpected result: %s/%s", status, outcome)
	}

	status, outcome, err = SettleOutcome(ChargeDeclined)
	if err != nil {
		t.Fatalf("settle declined: %v", err)
	}
	if status != TransactionStatusFailed || outcome != PaymentOutcomeFailed {
		t.Fatalf("unexpected result: %s/%s", status, outcome)
	}

	if _, _, err := SettleOutcome(ChargeStatus("unknown")); !errors.Is(err, ErrChargeStatusInvalid) {
		t.Fatalf("expected ErrChargeStatusInvalid, got %v", err)
	}
}

func TestBillingRecord_ValidateInvariants(t *testing.T) {
	rec := BillingRecord{AmountMinor: -1}
	errs := rec.ValidateInvariants()
	if len(errs) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(errs), errs)
	}

	rec = BillingRecord{
		BookingID:   "BK-1",
		UserID:      "u1",
		BookingType: ListingTypeFlight,
		AmountMinor: 100,
	}
	if errs := rec.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected valid record, got %v", errs)
	}
}

func TestTransactionStatus_Terminal(t *testing.T) {
	if TransactionStatusPending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
	for _, s := range []TransactionStatus{
		TransactionStatusCompleted, TransactionStatusFailed,
		TransactionStatusRefunded, TransactionStatusCancelled,
	} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
