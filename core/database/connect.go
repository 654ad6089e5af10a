package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	coreconfig "github.com/m3rciful/tonbot/core/config"
	"github.com/m3rciful/tonbot/core/logger"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"

	readyTimeout  = 30 * time.Second
	retryInterval = 2 * time.Second
)

// PostgresDSN renders cfg as a lib/pq key/value connection string.
func PostgresDSN(cfg coreconfig.DatabaseConfig) string {
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
	)
}

// SQLiteDSN returns a modernc.org/sqlite DSN with WAL and a busy timeout.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// Connect opens the database selected by cfg.Storage, configures the pool,
// and waits until it answers. The memory driver has no database: Connect
// returns nil, nil.
func Connect(ctx context.Context, cfg *coreconfig.Config) (*sqlx.DB, error) {
	var (
		driver, dsn string
		pool        int
		attrs       []slog.Attr
	)
	switch cfg.Storage.Driver {
	case coreconfig.StorageMemory, "":
		return nil, nil
	case coreconfig.StoragePostgres:
		driver, dsn, pool = driverPostgres, PostgresDSN(cfg.Database), cfg.Database.MaxConnections
		attrs = []slog.Attr{
			slog.String("host", cfg.Database.Host),
			slog.String("port", cfg.Database.Port),
			slog.String("db", cfg.Database.Name),
		}
	case coreconfig.StorageSQLite:
		path := cfg.Storage.SQLitePath
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("db connect: create %s: %w", dir, err)
			}
		}
		driver, dsn, pool = driverSQLite, SQLiteDSN(path), 1
		attrs = []slog.Attr{slog.String("path", path)}
	default:
		return nil, fmt.Errorf("db connect: unsupported storage driver %q", cfg.Storage.Driver)
	}
	attrs = append([]slog.Attr{slog.String("driver", driver)}, attrs...)

	start := time.Now()
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			append(attrs, slog.String("err", err.Error()))...)
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if pool > 0 {
		db.SetMaxOpenConns(pool)
		db.SetMaxIdleConns(pool)
	}

	if err := WaitReady(ctx, db, readyTimeout); err != nil {
		_ = db.Close()
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.ping",
			append(attrs,
				slog.Duration("duration", logger.Took(start)),
				slog.String("err", err.Error()),
			)...)
		return nil, fmt.Errorf("db ping: %w", err)
	}

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		append(attrs,
			slog.Int("pool_open", pool),
			slog.Duration("duration", logger.Took(start)),
		)...)
	return db, nil
}

// WaitReady pings db until it answers, timeout passes, or ctx is done.
func WaitReady(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait", slog.String("err", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", err)
		case <-time.After(retryInterval):
		}
	}
}
