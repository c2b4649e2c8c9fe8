package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/memory"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/postgres"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/sqlite"
)

// runtimeDependencies: хранилища, выбранные драйвером из конфигурации.
type runtimeDependencies struct {
	store           domain.LedgerStore
	outboxRepo      domain.OutboxRepository
	idempotencyRepo domain.IdempotencyRepository
	closeFn         func() error
}

func (d runtimeDependencies) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies открывает хранилище леджера по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		outboxRepo := memory.NewOutboxRepository()
		logger.Info("используется in-memory хранилище леджера")
		return runtimeDependencies{
			store:           memory.NewLedgerStore(outboxRepo),
			outboxRepo:      outboxRepo,
			idempotencyRepo: memory.NewIdempotencyRepository(),
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return runtimeDependencies{}, errors.New("postgres dsn is required for postgres storage driver")
		}

		store, err := postgres.Open(ctx, dsn, postgres.WithMaxOpenConns(cfg.PostgresMaxConns))
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("миграции postgres применены")
		}

		logger.Info("используется postgres хранилище леджера")
		return runtimeDependencies{
			store:           postgres.NewLedgerStore(store),
			outboxRepo:      postgres.NewOutboxRepository(store),
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			closeFn:         store.Close,
		}, nil

	case StorageDriverSQLite:
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			return runtimeDependencies{}, errors.New("sqlite path is required for sqlite storage driver")
		}

		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return runtimeDependencies{}, err
		}

		// Ключи идемпотентности живут не дольше TTL, поэтому для sqlite хранятся в памяти процесса.
		logger.WithField("path", path).Info("используется sqlite хранилище леджера")
		return runtimeDependencies{
			store:           store,
			outboxRepo:      store.Outbox(),
			idempotencyRepo: memory.NewIdempotencyRepository(),
			closeFn:         store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
