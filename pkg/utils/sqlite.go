package utils

import (
	"context"
	"database/sql"
	"math/rand"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database file in WAL mode.
// Used for local runs and tests; production uses Postgres.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	return openPool(ctx, "sqlite", dsn, PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2})
}

// RetryConfig controls retries of transient SQLite contention errors.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetry is used by the SQL repositories for writes.
var DefaultRetry = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  25 * time.Millisecond,
	MaxDelay:   250 * time.Millisecond,
}

// IsTransientSQLiteErr reports whether err is a lock/busy error that a retry can clear.
func IsTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// Retry runs fn, retrying transient SQLite errors with exponential backoff and jitter.
// Non-transient errors (including every Postgres error) return immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !IsTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxRetries {
			break
		}
		t := time.NewTimer(backoffDelay(cfg, attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << uint(attempt)
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.BaseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.BaseDelay)))
	}
	return delay
}
