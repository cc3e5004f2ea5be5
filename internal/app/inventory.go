package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/api"
	healthcheck "github.com/travelmesh/bms/internal/health"
	"github.com/travelmesh/bms/internal/messaging/kafka"
	"github.com/travelmesh/bms/internal/metrics"
	"github.com/travelmesh/bms/internal/service/idempotency"
	"github.com/travelmesh/bms/internal/service/outbox"
	"github.com/travelmesh/bms/internal/service/reconcile"
	"github.com/travelmesh/bms/internal/service/reservation"
	"github.com/travelmesh/bms/internal/version"
)

// RunInventory запускает inventory-сервис: REST API бронирований, outbox
// worker для booking.created, консьюмер payment-топика и reconciliation
// sweep. Блокируется до отмены ctx или фатальной ошибки.
func RunInventory(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "inventory-app")

	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bookingMetrics := metrics.NewBookingMetrics()
	manager := reservation.NewManager(deps.listings, deps.outboxRepo,
		reservation.WithTimeline(deps.timelineRepo),
		reservation.WithMetrics(bookingMetrics),
		reservation.WithLogger(logger.WithField("layer", "reservation")),
	)

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if cfg.KafkaBrokers != "" && err != nil {
		return err
	}
	defer closeKafka(producer, logger)

	var consumer *kafka.Consumer
	if producer != nil {
		publisher := kafka.NewOutboxPublisher(producer)
		worker := outbox.NewWorker(deps.outboxRepo, publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
		)
		go worker.Run(runCtx)

		groupID := cfg.KafkaConsumerGroup
		if groupID == "" {
			groupID = "bms-inventory"
		}
		consumer, err = kafka.NewConsumerWithDLQ(
			strings.Split(cfg.KafkaBrokers, ","),
			groupID,
			[]string{kafka.TopicPaymentEvents},
			paymentEventsHandler(manager, logger.WithField("layer", "consumer")),
			producer,
			cfg.KafkaMaxRetries,
		)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Start(runCtx); err != nil {
				logger.WithError(err).Error("payment events consumer stopped")
			}
		}()
		defer func() { _ = consumer.Stop() }()
	}

	sweeper := reconcile.NewSweeper(deps.listings, manager,
		reconcile.WithLogger(logger.WithField("layer", "reconcile")),
		reconcile.WithInterval(cfg.ReconcileInterval),
		reconcile.WithDeadline(cfg.ReconcileDeadline),
		reconcile.WithBatchSize(cfg.ReconcileBatchSize),
	)
	go sweeper.Run(runCtx)

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	go cleanup.Run(runCtx)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return deps.store.Ping(context.Background())
		}))
	}
	if producer != nil {
		healthHandler.RegisterChecker("kafka", healthcheck.NewSimpleChecker("kafka", func() error {
			stats, err := deps.outboxRepo.Stats()
			if err != nil {
				return err
			}
			if stats.PendingCount > cfg.OutboxMaxPending {
				return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, cfg.OutboxMaxPending)
			}
			return nil
		}))
	}
	startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)

	server := api.NewServer(
		api.WithServerLogger(logger.WithField("layer", "http")),
		api.WithHealthHandler(healthHandler),
		api.WithIdempotency(deps.idempotencyRepo, cfg.IdempotencyTTL),
	)
	server.MountInventory(api.NewInventoryHandlers(manager, logger.WithField("layer", "http")))

	_, apiErr := startAPIServer(runCtx, cfg.HTTPAddr, server.Handler(), logger)

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем inventory-сервис")
		return ctx.Err()
	case err := <-apiErr:
		return err
	}
}
