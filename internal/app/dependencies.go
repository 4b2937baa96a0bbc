package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/health"
	"github.com/vladislavdragonenkov/checkout/internal/storage/memory"
	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

// runtimeDependencies — хранилище и репозитории, собранные под выбранный
// storage driver.
type runtimeDependencies struct {
	orders          domain.OrderRepository
	products        domain.ProductRepository
	payments        domain.PaymentRepository
	reconcileStore  domain.ReconciliationStore
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	storageChecker  health.Checker
	closeFn         func()
}

// initRuntimeDependencies создаёт репозитории под cfg.StorageDriver.
// Для postgres подключение проверяется ping-ом и, при включённом
// PostgresAutoMigrate, схема доводится до актуальной версии.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			orders:          memory.NewOrderRepository(store),
			products:        memory.NewProductRepository(store),
			payments:        memory.NewPaymentRepository(store),
			reconcileStore:  memory.NewReconciliationStore(store),
			outboxRepo:      memory.NewOutboxRepository(),
			timelineRepo:    memory.NewTimelineRepository(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  health.NewSimpleChecker("storage", func() error { return nil }),
			closeFn:         func() {},
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
			logger.Info("postgres schema is up to date")
		}

		logger.Info("using postgres storage")
		return &runtimeDependencies{
			orders:          postgres.NewOrderRepository(store),
			products:        postgres.NewProductRepository(store),
			payments:        postgres.NewPaymentRepository(store),
			reconcileStore:  postgres.NewReconciliationStore(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			timelineRepo:    postgres.NewTimelineRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker: health.NewSimpleChecker("storage", func() error {
				return store.Ping(context.Background())
			}),
			closeFn: func() {
				if err := store.Close(); err != nil {
					logger.WithError(err).Warn("failed to close postgres store")
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
