// Command migrate управляет схемой хранилища леджера: версионные миграции postgres
// или AutoMigrate для sqlite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/app"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/postgres"
	"github.com/vladislavdragonenkov/auctionledger/internal/storage/sqlite"
)

const defaultTimeout = 30 * time.Second

type command struct {
	driver    string
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

// parseCommand читает флаги; пустой -dsn берётся из env того же имени, что и у сервиса.
func parseCommand(args []string, getenv func(string) string, output io.Writer) (command, error) {
	var cmd command
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cmd.driver, "driver", app.StorageDriverPostgres, "storage driver: postgres|sqlite")
	fs.StringVar(&cmd.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&cmd.steps, "steps", 0, "migrations to apply (0 = all) or roll back (0 = one)")
	fs.StringVar(&cmd.dsn, "dsn", "", "PostgreSQL DSN or SQLite path (fallback: "+app.EnvPostgresDSN+" / "+app.EnvSQLitePath+")")
	fs.DurationVar(&cmd.timeout, "timeout", defaultTimeout, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return command{}, err
	}

	cmd.driver = strings.ToLower(strings.TrimSpace(cmd.driver))
	cmd.direction = strings.ToLower(strings.TrimSpace(cmd.direction))
	cmd.dsn = strings.TrimSpace(cmd.dsn)

	var envKey string
	switch cmd.driver {
	case app.StorageDriverPostgres:
		envKey = app.EnvPostgresDSN
		if !oneOf(cmd.direction, "up", "down", "status") {
			return command{}, fmt.Errorf("unsupported direction %q (use up|down|status)", cmd.direction)
		}
	case app.StorageDriverSQLite:
		envKey = app.EnvSQLitePath
		if cmd.direction != "up" {
			return command{}, fmt.Errorf("unsupported direction %q for sqlite (use up)", cmd.direction)
		}
	default:
		return command{}, fmt.Errorf("unsupported driver %q (use postgres|sqlite)", cmd.driver)
	}

	if cmd.dsn == "" && getenv != nil {
		cmd.dsn = strings.TrimSpace(getenv(envKey))
	}
	var errs []error
	if cmd.dsn == "" {
		errs = append(errs, fmt.Errorf("%s (or -dsn) is required", envKey))
	}
	if cmd.steps < 0 {
		errs = append(errs, errors.New("steps must be >= 0"))
	}
	if cmd.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	return cmd, errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func main() {
	cmd, err := parseCommand(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmd.timeout)
	defer cancel()

	logger := log.WithFields(log.Fields{"component": "migrate", "driver": cmd.driver})
	if err := run(ctx, cmd, os.Stdout); err != nil {
		logger.WithError(err).Error("migration failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd command, out io.Writer) error {
	if cmd.driver == app.StorageDriverSQLite {
		return migrateSQLite(ctx, cmd.dsn, out)
	}

	store, err := postgres.Open(ctx, cmd.dsn)
	if err != nil {
		return err
	}
	defer store.Close()
	return migratePostgres(ctx, store, cmd, out)
}

// schemaMigrator: версионные миграции postgres.Store.
type schemaMigrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

func migratePostgres(ctx context.Context, m schemaMigrator, cmd command, out io.Writer) error {
	var err error
	switch cmd.direction {
	case "up":
		err = m.MigrateUp(ctx, cmd.steps)
	case "down":
		err = m.MigrateDown(ctx, cmd.steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd.direction, err)
	}

	state, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	printState(out, cmd.direction, state)
	return nil
}

func printState(out io.Writer, direction string, state postgres.MigrationState) {
	pending := "none"
	if len(state.Pending) > 0 {
		pending = strings.Join(state.Pending, ",")
	}
	_, _ = fmt.Fprintf(out, "%s: version=%d applied=%d pending=%s\n", direction, state.Version, state.Applied, pending)
}

// migrateSQLite создаёт схему через AutoMigrate: версий и отката у sqlite нет.
func migrateSQLite(ctx context.Context, path string, out io.Writer) error {
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "sqlite schema ok: path=%s\n", path)
	return nil
}
