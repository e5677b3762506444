package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"derivatio-energy/internal/observability/logging"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

const advisoryLockKey int64 = 7_301_554_208

// Up applies every embedded migration. It holds a Postgres advisory lock so concurrent
// deployments do not race.
func Up(ctx context.Context, db *sql.DB, logger *zap.Logger) (uint, error) {
	if db == nil {
		return 0, errors.New("migration: nil db")
	}
	logger = logging.OrNop(logger)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	unlock, err := acquireAdvisoryLock(ctx, db)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = unlock(context.Background())
	}()

	m, err := newMigrator(db)
	if err != nil {
		return 0, err
	}
	if _, err := ensureNotDirty(m); err != nil {
		return 0, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migration: apply: %w", err)
	}

	version, err := ensureNotDirty(m)
	if err != nil {
		return 0, err
	}
	latest, err := LatestVersion()
	if err != nil {
		return 0, err
	}
	if version != latest {
		return version, fmt.Errorf("migration: version mismatch after migrate: got %d want %d", version, latest)
	}
	logger.Info("migrations applied", zap.String("event", "migrations_applied"), zap.Uint("version", version))
	return version, nil
}

// Down rolls back the given number of migrations.
func Down(ctx context.Context, db *sql.DB, steps int) error {
	if db == nil {
		return errors.New("migration: nil db")
	}
	if steps <= 0 {
		return errors.New("migration: steps must be positive")
	}
	unlock, err := acquireAdvisoryLock(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		_ = unlock(context.Background())
	}()

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration: rollback: %w", err)
	}
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migration: open embedded files: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migration: create source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration: create driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration: create migrator: %w", err)
	}
	return m, nil
}

func ensureNotDirty(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, nil
		}
		return 0, fmt.Errorf("migration: read version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("migration: database is dirty at version %d", version)
	}
	return version, nil
}

type unlockFunc func(ctx context.Context) error

func acquireAdvisoryLock(ctx context.Context, db *sql.DB) (unlockFunc, error) {
	var locked bool
	if err := db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked); err != nil {
		return nil, fmt.Errorf("migration: acquire advisory lock: %w", err)
	}
	if !locked {
		return nil, errors.New("migration: another process holds the advisory lock")
	}
	return func(ctx context.Context) error {
		var released bool
		if err := db.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockKey).Scan(&released); err != nil {
			return fmt.Errorf("migration: release advisory lock: %w", err)
		}
		if !released {
			return errors.New("migration: advisory lock was not held")
		}
		return nil
	}, nil
}
