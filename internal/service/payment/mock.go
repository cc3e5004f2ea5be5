package payment

import (
	"context"
	"sync"

	"github.com/travelmesh/bms/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов.
type MockGateway struct {
	ChargeStatus domain.ChargeStatus
	ChargeErr    error

	mu          sync.Mutex
	chargeCalls int
	lastBooking string
}

// NewMockGateway возвращает mock с одобрением по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{ChargeStatus: domain.ChargeApproved}
}

// Charge возвращает заранее настроенный результат и считает вызовы.
func (m *MockGateway) Charge(_ context.Context, bookingID string, _ int64, _ string) (domain.ChargeStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chargeCalls++
	m.lastBooking = bookingID
	return m.ChargeStatus, m.ChargeErr
}

// ChargeCalls возвращает число выполненных списаний.
func (m *MockGateway) ChargeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chargeCalls
}

// LastBookingID возвращает booking_id последнего списания.
func (m *MockGateway) LastBookingID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBooking
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
