package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := rawStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	requireState := func(version int64, applied int, pending ...string) {
		t.Helper()
		state, err := store.MigrationStatus(ctx)
		require.NoError(t, err)
		require.Equal(t, version, state.Version)
		require.Equal(t, applied, state.Applied)
		require.Equal(t, len(pending), len(state.Pending), "pending: %v", state.Pending)
		for i, label := range pending {
			require.Equal(t, label, state.Pending[i])
		}
	}

	require.NoError(t, store.MigrateDown(ctx, 100), "reset")
	requireState(0, 0, "0001_ledger_core", "0002_outbox_idempotency")

	require.NoError(t, store.MigrateUp(ctx, 1))
	requireState(1, 1, "0002_outbox_idempotency")

	require.NoError(t, store.MigrateUp(ctx, 0))
	requireState(2, 2)

	// Повторный up ничего не меняет.
	require.NoError(t, store.MigrateUp(ctx, 0))
	requireState(2, 2)

	require.NoError(t, store.MigrateDown(ctx, 1))
	requireState(1, 1, "0002_outbox_idempotency")

	require.NoError(t, store.MigrateDown(ctx, 0))
	requireState(0, 0, "0001_ledger_core", "0002_outbox_idempotency")

	require.NoError(t, store.MigrateDown(ctx, 1), "down on empty schema is a no-op")
}

func TestMigrator_DetectsEditedMigration(t *testing.T) {
	store := rawStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err := store.DB().ExecContext(ctx, `UPDATE schema_migrations SET checksum = 'edited' WHERE version = 1`)
	require.NoError(t, err)

	err = store.MigrateUp(ctx, 0)
	require.True(t, errors.Is(err, ErrMigrationDrift), "expected drift, got %v", err)

	state, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, state.Applied)

	// Откатываем и применяем заново, чтобы не оставлять испорченную запись другим тестам.
	require.NoError(t, store.MigrateDown(ctx, 100))
	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestMigrator_NilStoreGuards(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := nilStore.MigrateUp(ctx, 0); err == nil {
		t.Fatal("expected error for nil store MigrateUp")
	}
	if err := nilStore.MigrateDown(ctx, 1); err == nil {
		t.Fatal("expected error for nil store MigrateDown")
	}
	if _, err := nilStore.MigrationStatus(ctx); err == nil {
		t.Fatal("expected error for nil store MigrationStatus")
	}
}
