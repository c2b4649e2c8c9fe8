package postgres

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestEmbeddedLedgerMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must load: %v", err)
	}
	if len(migrations) != 2 || migrations[0].label() != "0001_ledger_core" || migrations[1].label() != "0002_outbox_idempotency" {
		t.Fatalf("unexpected embedded migrations: %+v", migrations)
	}
	for _, m := range migrations {
		if !strings.Contains(m.UpSQL, "CREATE TABLE") {
			t.Fatalf("migration %s must create tables", m.label())
		}
	}
}

func TestParseMigrationFile(t *testing.T) {
	t.Parallel()

	version, name, direction, err := parseMigrationFile("0012_bid_index.down.sql")
	if err != nil {
		t.Fatalf("parseMigrationFile failed: %v", err)
	}
	if version != 12 || name != "bid_index" || direction != "down" {
		t.Fatalf("unexpected parse result: %d %s %s", version, name, direction)
	}

	for _, bad := range []string{"12_bid_index.sql", "bid_index.up.sql", "0001_bad-name.up.sql"} {
		if _, _, _, err := parseMigrationFile(bad); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestLoadMigrationsFromFS_NameMismatch(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT);")},
		"sql/migrations/0001_other.down.sql": {Data: []byte("DROP TABLE a;")},
	}
	if _, err := loadMigrationsFromFS(fsys); err == nil || !strings.Contains(err.Error(), "name mismatch") {
		t.Fatalf("expected name mismatch error, got %v", err)
	}
}

func TestCheckDrift(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "init", UpSQL: "CREATE TABLE a (id INT);", DownSQL: "DROP TABLE a;"},
		{Version: 2, Name: "more", UpSQL: "CREATE TABLE b (id INT);", DownSQL: "DROP TABLE b;"},
	}

	clean := map[int64]appliedMigration{
		1: {Version: 1, Name: "init", Checksum: migrations[0].checksum()},
	}
	if err := checkDrift(migrations, clean); err != nil {
		t.Fatalf("unexpected drift: %v", err)
	}

	edited := map[int64]appliedMigration{
		1: {Version: 1, Name: "init", Checksum: "edited"},
	}
	err := checkDrift(migrations, edited)
	if !errors.Is(err, ErrMigrationDrift) || !strings.Contains(err.Error(), "0001_init checksum mismatch") {
		t.Fatalf("expected checksum drift, got %v", err)
	}

	unknown := map[int64]appliedMigration{
		1: {Version: 1, Name: "init", Checksum: migrations[0].checksum()},
		7: {Version: 7, Name: "future"},
	}
	err = checkDrift(migrations, unknown)
	if !errors.Is(err, ErrMigrationDrift) || !strings.Contains(err.Error(), "0007_future is not embedded") {
		t.Fatalf("expected unknown migration drift, got %v", err)
	}
}

func TestMigrationState(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "init"},
		{Version: 2, Name: "more"},
		{Version: 3, Name: "last"},
	}
	applied := map[int64]appliedMigration{1: {Version: 1}, 2: {Version: 2}}

	state := migrationState(migrations, applied)
	if state.Version != 2 || state.Applied != 2 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if len(state.Pending) != 1 || state.Pending[0] != "0003_last" {
		t.Fatalf("unexpected pending: %+v", state.Pending)
	}

	empty := migrationState(migrations, nil)
	if empty.Version != 0 || len(empty.Pending) != 3 {
		t.Fatalf("unexpected empty state: %+v", empty)
	}
}
