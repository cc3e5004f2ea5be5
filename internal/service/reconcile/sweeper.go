package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
)

const (
	defaultSweepInterval   = time.Minute
	defaultPendingDeadline = 15 * time.Minute
	defaultSweepBatchSize  = 100
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bms_reconcile_sweep_runs_total",
		Help: "Total number of reconciliation sweep runs grouped by result.",
	}, []string{"result"})
	sweepResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bms_reconcile_resolved_total",
		Help: "Total number of stale pending reservations resolved as failed.",
	})
	sweepLastResolved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bms_reconcile_last_resolved",
		Help: "Number of reservations resolved during the last sweep run.",
	})
)

// OutcomeApplier применяет исход расчёта к резервации. Реализуется
// менеджером резерваций.
type OutcomeApplier interface {
	ApplyPaymentOutcome(ctx context.Context, bookingID string, outcome domain.PaymentOutcome, reason string) error
}

// SweeperOptions задаёт параметры sweep-воркера.
type SweeperOptions struct {
	Logger    *log.Entry
	Interval  time.Duration
	Deadline  time.Duration
	BatchSize int
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт период между проходами.
func WithInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithDeadline задаёт возраст pending-резервации, после которого сага
// считается зависшей.
func WithDeadline(deadline time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Deadline = deadline
	}
}

// WithBatchSize задаёт размер выборки за один проход.
func WithBatchSize(batchSize int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// Sweeper закрывает дыру саги без таймаута: pending-резервация, исход по
// которой так и не пришёл (расчёт лежит, событие потеряно брокером),
// иначе висела бы вечно вместе с удержанной доступностью. Sweep
// периодически находит такие резервации и применяет к ним исход failed,
// возвращая холд. Поздно пришедший настоящий исход упрётся в терминальный
// статус и станет no-op.
type Sweeper struct {
	listings  domain.ListingRepository
	applier   OutcomeApplier
	logger    *log.Entry
	interval  time.Duration
	deadline  time.Duration
	batchSize int
}

// NewSweeper создаёт reconciliation sweeper.
func NewSweeper(listings domain.ListingRepository, applier OutcomeApplier, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		Interval:  defaultSweepInterval,
		Deadline:  defaultPendingDeadline,
		BatchSize: defaultSweepBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reconcile-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.Deadline <= 0 {
		opts.Deadline = defaultPendingDeadline
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultSweepBatchSize
	}

	return &Sweeper{
		listings:  listings,
		applier:   applier,
		logger:    logger,
		interval:  opts.Interval,
		deadline:  opts.Deadline,
		batchSize: opts.BatchSize,
	}
}

// Run запускает периодические проходы до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.listings == nil || s.applier == nil {
		s.logger.Warn("reconcile sweeper is disabled: listings or applier is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now().UTC())
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	resolved, err := s.SweepOnce(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("reconcile sweep failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastResolved.Set(float64(resolved))
	if resolved > 0 {
		s.logger.WithField("resolved", resolved).Info("reconcile sweep resolved stale reservations")
	}
}

// SweepOnce выполняет один проход: находит pending-резервации старше
// дедлайна и закрывает их как failed. Возвращает число закрытых резерваций.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stale, err := s.listings.ListStalePending(now.Add(-s.deadline), s.batchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, res := range stale {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		err := s.applier.ApplyPaymentOutcome(ctx, res.BookingID, domain.PaymentOutcomeFailed, "settlement deadline exceeded")
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", res.BookingID).Warn("failed to resolve stale reservation")
			continue
		}
		resolved++
		sweepResolvedTotal.Inc()
	}

	return resolved, nil
}
