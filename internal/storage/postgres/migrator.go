package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Схема леджера версионируется парами файлов sql/migrations/<version>_<name>.{up,down}.sql.
const (
	migrationsGlob = "sql/migrations/*.sql"
	// migrationLockName берётся через hashtext, как и scope-блокировки леджера.
	migrationLockName = "auction-ledger:schema-migrations"
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

	// ErrMigrationDrift: применённая миграция не совпадает с файлом в сборке
	// или вовсе отсутствует в ней.
	ErrMigrationDrift = errors.New("schema migrations drifted")
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// checksum фиксирует up-скрипт, чтобы отредактированную после применения миграцию было видно.
func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

// MigrationState: состояние схемы относительно миграций, встроенных в сборку.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
}

// MigrateUp применяет недостающие миграции по возрастанию версии; steps=0 применяет все.
// Перед применением проверяет, что уже применённые миграции не разошлись с файлами.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrator(ctx, func(m *migrator) error {
		return m.up(ctx, steps)
	})
}

// MigrateDown откатывает последние миграции; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrator(ctx, func(m *migrator) error {
		return m.down(ctx, steps)
	})
}

// MigrationStatus возвращает текущую версию, число применённых и список ожидающих миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	var state MigrationState
	err := s.withMigrator(ctx, func(m *migrator) error {
		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		state = migrationState(m.migrations, applied)
		return nil
	})
	return state, err
}

// appliedMigration: строка schema_migrations.
type appliedMigration struct {
	Version  int64
	Name     string
	Checksum string
}

type migrator struct {
	conn       *sql.Conn
	migrations []migration
}

// withMigrator держит отдельное соединение с session-level advisory lock,
// чтобы параллельные экземпляры сервиса не применяли миграции одновременно.
func (s *Store) withMigrator(ctx context.Context, fn func(m *migrator) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock(hashtext($1))", migrationLockName); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", migrationLockName)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	return fn(&migrator{conn: conn, migrations: migrations})
}

func (m *migrator) up(ctx context.Context, steps int) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	if err := checkDrift(m.migrations, applied); err != nil {
		return err
	}

	pending := pendingMigrations(m.migrations, applied)
	if steps > 0 && steps < len(pending) {
		pending = pending[:steps]
	}
	for _, mig := range pending {
		err := m.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("execute up migration %s: %w", mig.label(), err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO schema_migrations (version, name, checksum, applied_at)
				VALUES ($1, $2, $3, $4)
			`, mig.Version, mig.Name, mig.checksum(), time.Now().UTC()); err != nil {
				return fmt.Errorf("record up migration %s: %w", mig.label(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *migrator) down(ctx context.Context, steps int) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int64]migration, len(m.migrations))
	for _, mig := range m.migrations {
		byVersion[mig.Version] = mig
	}

	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps < len(versions) {
		versions = versions[:steps]
	}

	for _, version := range versions {
		mig, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("%w: cannot roll back migration %d unknown to this build", ErrMigrationDrift, version)
		}
		err := m.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("execute down migration %s: %w", mig.label(), err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version); err != nil {
				return fmt.Errorf("delete migration record %s: %w", mig.label(), err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *migrator) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

func (m *migrator) applied(ctx context.Context) (map[int64]appliedMigration, error) {
	rows, err := m.conn.QueryContext(ctx, `SELECT version, name, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]appliedMigration)
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		result[a.Version] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return result, nil
}

// checkDrift сверяет применённые миграции с встроенными файлами.
func checkDrift(migrations []migration, applied map[int64]appliedMigration) error {
	known := make(map[int64]migration, len(migrations))
	for _, mig := range migrations {
		known[mig.Version] = mig
	}

	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	var problems []string
	for _, version := range versions {
		a := applied[version]
		mig, ok := known[version]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%04d_%s is not embedded", version, a.Name))
		case a.Checksum != mig.checksum():
			problems = append(problems, fmt.Sprintf("%s checksum mismatch", mig.label()))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMigrationDrift, strings.Join(problems, "; "))
	}
	return nil
}

func pendingMigrations(migrations []migration, applied map[int64]appliedMigration) []migration {
	var pending []migration
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; !ok {
			pending = append(pending, mig)
		}
	}
	return pending
}

func migrationState(migrations []migration, applied map[int64]appliedMigration) MigrationState {
	state := MigrationState{Applied: len(applied)}
	for version := range applied {
		if version > state.Version {
			state.Version = version
		}
	}
	for _, mig := range pendingMigrations(migrations, applied) {
		state.Pending = append(state.Pending, mig.label())
	}
	return state
}

// parseMigrationFile разбирает имя вида 0001_ledger_core.up.sql.
func parseMigrationFile(name string) (version int64, label, direction string, err error) {
	matches := migrationFilePattern.FindStringSubmatch(name)
	if len(matches) != 4 {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", name)
	}
	version, err = strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", name, err)
	}
	return version, matches[2], matches[3], nil
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		version, name, direction, err := parseMigrationFile(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &migration{Version: version, Name: name}
			byVersion[version] = mig
		} else if mig.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, mig.Name, name)
		}

		target := &mig.UpSQL
		if direction == "down" {
			target = &mig.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL == "" || mig.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", mig.label())
		}
		migrations = append(migrations, *mig)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	return migrations, nil
}
