package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/travelmesh/bms/internal/domain"
	"github.com/travelmesh/bms/internal/storage/memory"
	"github.com/travelmesh/bms/internal/storage/postgres"
)

// runtimeDependencies содержит репозитории, собранные под выбранный
// драйвер хранилища.
type runtimeDependencies struct {
	listings        domain.ListingRepository
	billing         domain.BillingRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	store *postgres.Store // nil для memory-драйвера
}

// Close освобождает ресурсы хранилища.
func (d *runtimeDependencies) Close() error {
	if d == nil || d.store == nil {
		return nil
	}
	return d.store.Close()
}

// initRuntimeDependencies собирает репозитории по конфигурации. Memory
// используется для локальной разработки и тестов, postgres для
// production-запуска.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			listings:        memory.NewListingRepository(),
			billing:         memory.NewBillingRepository(),
			outboxRepo:      memory.NewOutboxRepository(),
			timelineRepo:    memory.NewTimelineRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			listings:        postgres.NewListingRepository(store),
			billing:         postgres.NewBillingRepository(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			timelineRepo:    postgres.NewTimelineRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			store:           store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
