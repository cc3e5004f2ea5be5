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
	"github.com/travelmesh/bms/internal/service/outbox"
	"github.com/travelmesh/bms/internal/service/payment"
	"github.com/travelmesh/bms/internal/service/settlement"
	"github.com/travelmesh/bms/internal/version"
)

// RunBilling запускает billing-сервис: консьюмер booking.created, расчёт
// через платёжный шлюз, REST API биллинговых записей и outbox worker для
// payment-событий. Блокируется до отмены ctx или фатальной ошибки.
func RunBilling(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "billing-app")

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
	gateway := payment.NewSimulatedGateway(
		payment.WithDeclineRate(cfg.PaymentDeclineRate),
		payment.WithErrorRate(cfg.PaymentErrorRate),
		payment.WithLatency(cfg.PaymentLatency),
		payment.WithGatewayLogger(logger.WithField("layer", "gateway")),
	)
	service := settlement.NewService(deps.billing, gateway, deps.outboxRepo,
		settlement.WithMetrics(bookingMetrics),
		settlement.WithLogger(logger.WithField("layer", "settlement")),
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
			groupID = "bms-billing"
		}
		consumer, err = kafka.NewConsumerWithDLQ(
			strings.Split(cfg.KafkaBrokers, ","),
			groupID,
			[]string{kafka.TopicBookingEvents},
			bookingEventsHandler(service, logger.WithField("layer", "consumer")),
			producer,
			cfg.KafkaMaxRetries,
		)
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Start(runCtx); err != nil {
				logger.WithError(err).Error("booking events consumer stopped")
			}
		}()
		defer func() { _ = consumer.Stop() }()
	}

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
	)
	server.MountBilling(api.NewBillingHandlers(service, logger.WithField("layer", "http")))

	_, apiErr := startAPIServer(runCtx, cfg.HTTPAddr, server.Handler(), logger)

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем billing-сервис")
		return ctx.Err()
	case err := <-apiErr:
		return err
	}
}
