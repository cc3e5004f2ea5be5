package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/travelmesh/bms/internal/domain"
)

func TestSimulatedGateway_ApprovesByDefault(t *testing.T) {
	t.Parallel()

	gateway := NewSimulatedGateway(WithSeed(1))

	for i := 0; i < 10; i++ {
		status, err := gateway.Charge(context.Background(), "booking-1", 1000, "card")
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if status != domain.ChargeApproved {
			t.Fatalf("expected approval, got %s", status)
		}
	}
}

func TestSimulatedGateway_AlwaysDeclines(t *testing.T) {
	t.Parallel()

	gateway := NewSimulatedGateway(WithSeed(1), WithDeclineRate(1))

	status, err := gateway.Charge(context.Background(), "booking-1", 1000, "card")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if status != domain.ChargeDeclined {
		t.Fatalf("expected decline, got %s", status)
	}
}

func TestSimulatedGateway_InfraErrorIsNotAnOutcome(t *testing.T) {
	t.Parallel()

	gateway := NewSimulatedGateway(WithSeed(1), WithErrorRate(1))

	_, err := gateway.Charge(context.Background(), "booking-1", 1000, "card")
	if !errors.Is(err, domain.ErrPaymentUnavailable) {
		t.Fatalf("expected ErrPaymentUnavailable, got %v", err)
	}
}

func TestSimulatedGateway_RejectsNegativeAmount(t *testing.T) {
	t.Parallel()

	gateway := NewSimulatedGateway(WithSeed(1))

	if _, err := gateway.Charge(context.Background(), "booking-1", -1, "card"); !errors.Is(err, domain.ErrAmountNegative) {
		t.Fatalf("expected ErrAmountNegative, got %v", err)
	}
}

func TestSimulatedGateway_LatencyHonorsContext(t *testing.T) {
	t.Parallel()

	gateway := NewSimulatedGateway(WithSeed(1), WithLatency(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := gateway.Charge(ctx, "booking-1", 1000, "card")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestDeterministicOutcome_IsStable(t *testing.T) {
	t.Parallel()

	first := DeterministicOutcome("booking-42", 0.3)
	for i := 0; i < 5; i++ {
		if got := DeterministicOutcome("booking-42", 0.3); got != first {
			t.Fatalf("outcome changed between calls: %s vs %s", first, got)
		}
	}

	if got := DeterministicOutcome("booking-42", 0); got != domain.ChargeApproved {
		t.Fatalf("zero decline rate must approve, got %s", got)
	}
	if got := DeterministicOutcome("booking-42", 1); got != domain.ChargeDeclined {
		t.Fatalf("full decline rate must decline, got %s", got)
	}
}
