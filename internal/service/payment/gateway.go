package payment

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
)

// SimulatedGateway — платёжный провайдер для окружений без реального
// процессинга. Исход списания выбирается по настраиваемым вероятностям:
// DeclineRate даёт бизнес-отказ (ChargeDeclined), ErrorRate — инфраструктурный
// сбой (ошибка без исхода). Бизнес-отказ и сбой различаются принципиально:
// первый завершает сагу компенсацией, второй уходит в retry консьюмера.
type SimulatedGateway struct {
	declineRate float64
	errorRate   float64
	latency     time.Duration
	logger      *log.Entry

	mu  sync.Mutex
	rng *rand.Rand
}

var _ domain.PaymentGateway = (*SimulatedGateway)(nil)

// GatewayOption настраивает SimulatedGateway.
type GatewayOption func(*SimulatedGateway)

// WithDeclineRate задаёт долю бизнес-отказов (0..1).
func WithDeclineRate(rate float64) GatewayOption {
	return func(g *SimulatedGateway) {
		g.declineRate = clampRate(rate)
	}
}

// WithErrorRate задаёт долю инфраструктурных сбоев (0..1).
func WithErrorRate(rate float64) GatewayOption {
	return func(g *SimulatedGateway) {
		g.errorRate = clampRate(rate)
	}
}

// WithLatency задаёт искусственную задержку вызова.
func WithLatency(latency time.Duration) GatewayOption {
	return func(g *SimulatedGateway) {
		if latency > 0 {
			g.latency = latency
		}
	}
}

// WithSeed делает последовательность исходов воспроизводимой.
func WithSeed(seed int64) GatewayOption {
	return func(g *SimulatedGateway) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// WithGatewayLogger задаёт logger.
func WithGatewayLogger(logger *log.Entry) GatewayOption {
	return func(g *SimulatedGateway) {
		g.logger = logger
	}
}

// NewSimulatedGateway создаёт шлюз; по умолчанию все списания одобряются.
func NewSimulatedGateway(options ...GatewayOption) *SimulatedGateway {
	g := &SimulatedGateway{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: log.WithField("component", "payment-gateway"),
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// Charge выполняет списание за бронирование. Повторный вызов с тем же
// booking_id может дать другой исход: дедупликация повторных списаний — зона
// ответственности вызывающего, а не шлюза.
func (g *SimulatedGateway) Charge(ctx context.Context, bookingID string, amountMinor int64, method string) (domain.ChargeStatus, error) {
	if amountMinor < 0 {
		return "", domain.ErrAmountNegative
	}

	if g.latency > 0 {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("charge %s: %w", bookingID, ctx.Err())
		case <-time.After(g.latency):
		}
	}

	roll := g.roll()
	switch {
	case roll < g.errorRate:
		return "", fmt.Errorf("charge %s: %w", bookingID, domain.ErrPaymentUnavailable)
	case roll < g.errorRate+g.declineRate:
		g.logger.WithFields(log.Fields{
			"booking_id":     bookingID,
			"amount_minor":   amountMinor,
			"payment_method": method,
		}).Info("charge declined")
		return domain.ChargeDeclined, nil
	default:
		return domain.ChargeApproved, nil
	}
}

func (g *SimulatedGateway) roll() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}

// DeterministicOutcome выбирает исход по хэшу booking_id. Используется в
// loadtest-сценариях, где важно воспроизводить одну и ту же смесь исходов.
func DeterministicOutcome(bookingID string, declineRate float64) domain.ChargeStatus {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bookingID))
	if float64(h.Sum32()%1000)/1000.0 < clampRate(declineRate) {
		return domain.ChargeDeclined
	}
	return domain.ChargeApproved
}
