// Package postgres хранит леджер аукционов в PostgreSQL: таблицы auctions/lots/bids,
// transactional outbox и ключи идемпотентности поверх одного пула database/sql (драйвер pgx).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ApplicationName попадает в pg_stat_activity для соединений сервиса.
const ApplicationName = "auction-ledger"

const defaultConnTimeout = 5 * time.Second

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolOptions задаёт размеры пула соединений.
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultPoolOptions рассчитаны на одну реплику сервиса; бид-запросы короткие,
// а scope-блокировки держат соединение только до конца транзакции.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxOpenConns:    25,
		MaxIdleConns:    25,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// Option настраивает Open.
type Option func(*PoolOptions)

// WithMaxOpenConns ограничивает число соединений; idle-пул не превышает его.
func WithMaxOpenConns(n int) Option {
	return func(o *PoolOptions) {
		if n > 0 {
			o.MaxOpenConns = n
			o.MaxIdleConns = min(o.MaxIdleConns, n)
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *PoolOptions) {
		if d > 0 {
			o.ConnMaxLifetime = d
		}
	}
}

// Store владеет пулом соединений с базой леджера.
type Store struct {
	db *sql.DB
}

// Open разбирает DSN, открывает пул и проверяет, что база отвечает.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = ApplicationName
	}

	pool := DefaultPoolOptions()
	for _, option := range options {
		option(&pool)
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул репозиториям пакета и интеграционным тестам.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema доводит схему леджера до последней версии (LEDGER_POSTGRES_AUTO_MIGRATE).
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
