package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"dialer-platform/internal/config"
	"dialer-platform/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies every pending up migration for driver.
// The caller keeps ownership of db.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var (
		target database.Driver
		dir    string
		err    error
	)
	switch driver {
	case config.StoreDriverPostgres, "":
		driver, dir = config.StoreDriverPostgres, "migrations/postgres"
		target, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	case config.StoreDriverSQLite:
		dir = "migrations/sqlite"
		target, err = sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	default:
		return fmt.Errorf("unsupported store driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, target)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.From(ctx).Info("database migrations completed", "driver", driver, "version", version, "dirty", dirty)
	return nil
}
