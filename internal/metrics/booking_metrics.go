package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics содержит метрики саги бронирования и расчёта.
type BookingMetrics struct {
	// Счётчики жизненного цикла резерваций
	bookingsCreated   prometheus.Counter
	bookingsConfirmed prometheus.Counter
	bookingsCancelled prometheus.Counter

	// Счётчики стороны расчёта
	settlementOutcomes *prometheus.CounterVec
	duplicateEvents    prometheus.Counter

	// Гистограммы времени выполнения
	chargeDuration prometheus.Histogram
	stepDuration   *prometheus.HistogramVec

	// Счётчики компенсаций и сверки
	availabilityRestored prometheus.Counter
	staleReservations    prometheus.Counter

	// Счётчики событий timeline и outbox
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для резерваций в ожидании исхода
	pendingBookings prometheus.Gauge
}

// NewBookingMetrics создаёт новый экземпляр метрик саги.
func NewBookingMetrics() *BookingMetrics {
	return newBookingMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newBookingMetricsWithRegisterer(registerer prometheus.Registerer) *BookingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BookingMetrics{
		bookingsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_created_total",
			Help: "Total number of pending reservations created",
		}),
		bookingsConfirmed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_confirmed_total",
			Help: "Total number of reservations confirmed after settlement",
		}),
		bookingsCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_bookings_cancelled_total",
			Help: "Total number of reservations cancelled by compensation",
		}),
		settlementOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bms_settlement_outcomes_total",
			Help: "Total number of settlement attempts grouped by outcome",
		}, []string{"outcome"}),
		duplicateEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_duplicate_events_total",
			Help: "Total number of redelivered events resolved as no-ops",
		}),
		chargeDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bms_charge_duration_seconds",
			Help:    "Duration of payment gateway charges in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "bms_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		availabilityRestored: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_availability_restored_total",
			Help: "Total number of availability holds returned by compensation",
		}),
		staleReservations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_stale_reservations_total",
			Help: "Total number of pending reservations resolved by the reconciliation sweep",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bms_outbox_events_total",
			Help: "Total number of events enqueued to the transactional outbox",
		}),
		pendingBookings: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bms_pending_bookings",
			Help: "Number of reservations currently awaiting a settlement outcome",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordBookingCreated увеличивает счётчик созданных резерваций.
func (m *BookingMetrics) RecordBookingCreated() {
	m.bookingsCreated.Inc()
	m.pendingBookings.Inc()
}

// RecordBookingConfirmed увеличивает счётчик подтверждённых резерваций.
func (m *BookingMetrics) RecordBookingConfirmed() {
	m.bookingsConfirmed.Inc()
	m.pendingBookings.Dec()
}

// RecordBookingCancelled увеличивает счётчик отменённых резерваций.
func (m *BookingMetrics) RecordBookingCancelled() {
	m.bookingsCancelled.Inc()
	m.pendingBookings.Dec()
}

// RecordSettlementOutcome увеличивает счётчик исходов расчёта.
func (m *BookingMetrics) RecordSettlementOutcome(outcome string) {
	m.settlementOutcomes.WithLabelValues(outcome).Inc()
}

// RecordDuplicateEvent увеличивает счётчик повторно доставленных событий.
func (m *BookingMetrics) RecordDuplicateEvent() {
	m.duplicateEvents.Inc()
}

// RecordChargeDuration записывает время вызова платёжного шлюза.
func (m *BookingMetrics) RecordChargeDuration(duration time.Duration) {
	m.chargeDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага саги.
func (m *BookingMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordAvailabilityRestored увеличивает счётчик возвращённых холдов.
func (m *BookingMetrics) RecordAvailabilityRestored() {
	m.availabilityRestored.Inc()
}

// RecordStaleReservation увеличивает счётчик резерваций, закрытых sweep-ом.
func (m *BookingMetrics) RecordStaleReservation() {
	m.staleReservations.Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *BookingMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *BookingMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
