package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса. Оба бинаря (inventory и
// billing) разделяют один набор настроек; поля, не относящиеся к роли,
// просто не используются.
type Config struct {
	// HTTPAddr — адрес публичного REST API.
	HTTPAddr string `envconfig:"HTTP_ADDR"`
	// MetricsAddr — адрес служебного HTTP: /metrics и health checks.
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE"`

	// KafkaBrokers — список брокеров через запятую. Пустое значение
	// отключает Kafka: сервис работает автономно, события копятся в outbox.
	KafkaBrokers       string `envconfig:"KAFKA_BROKERS"`
	KafkaConsumerGroup string `envconfig:"KAFKA_CONSUMER_GROUP"`
	KafkaMaxRetries    int    `envconfig:"KAFKA_MAX_RETRIES"`

	OutboxPollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE"`
	OutboxMaxAttempts  int           `envconfig:"OUTBOX_MAX_ATTEMPTS"`
	OutboxRetryDelay   time.Duration `envconfig:"OUTBOX_RETRY_DELAY"`
	OutboxMaxPending   int           `envconfig:"OUTBOX_MAX_PENDING"`

	IdempotencyTTL              time.Duration `envconfig:"IDEMPOTENCY_TTL"`
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE"`

	// ReconcileDeadline — сколько pending-резервация может ждать исхода
	// оплаты, прежде чем sweep отменит её и вернёт доступность.
	ReconcileInterval  time.Duration `envconfig:"RECONCILE_INTERVAL"`
	ReconcileDeadline  time.Duration `envconfig:"RECONCILE_DEADLINE"`
	ReconcileBatchSize int           `envconfig:"RECONCILE_BATCH_SIZE"`

	// Параметры симулятора платёжного провайдера (только billing).
	PaymentDeclineRate float64       `envconfig:"PAYMENT_DECLINE_RATE"`
	PaymentErrorRate   float64       `envconfig:"PAYMENT_ERROR_RATE"`
	PaymentLatency     time.Duration `envconfig:"PAYMENT_LATENCY"`
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaMaxRetries: 3,

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   200 * time.Millisecond,
		OutboxMaxPending:   1000,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,

		ReconcileInterval:  time.Minute,
		ReconcileDeadline:  15 * time.Minute,
		ReconcileBatchSize: 100,

		PaymentDeclineRate: 0.15,
		PaymentErrorRate:   0.05,
	}
}

// LoadConfig применяет переменные окружения с префиксом BMS_ поверх
// значений по умолчанию.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("bms", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек до старта сервиса.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres storage driver requires BMS_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	if c.PaymentDeclineRate < 0 || c.PaymentDeclineRate > 1 {
		return fmt.Errorf("payment decline rate must be within [0, 1]")
	}
	if c.PaymentErrorRate < 0 || c.PaymentErrorRate > 1 {
		return fmt.Errorf("payment error rate must be within [0, 1]")
	}
	return nil
}
