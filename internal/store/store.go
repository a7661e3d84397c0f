// Package store opens the SQL database shared by leads, call logs and audit events
// and applies the embedded schema migrations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"dialer-platform/internal/config"
	"dialer-platform/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open connects to the configured driver and verifies the connection.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres, "":
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return db, nil
	case config.StoreDriverSQLite:
		return OpenSQLite(ctx, cfg.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// OpenSQLite creates the parent directory when needed.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := utils.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return db, nil
}
