package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/tonbot/core/config"
	coredatabase "github.com/m3rciful/tonbot/core/database"
	"github.com/m3rciful/tonbot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, *coreconfig.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, *sqlx.DB) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil for the memory storage driver.
	DB *sqlx.DB
}

// Close releases the database, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, connects to the configured storage database,
// and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	driver := opts.Config.Storage.Driver
	start := time.Now()
	db, err := connect(ctx, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	if db == nil {
		logger.Info(ctx, "bootstrap", "storage.ready", slog.String("driver", driver))
		return &Result{}, nil
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	logger.Info(ctx, "bootstrap", "storage.ready",
		slog.String("driver", driver),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Result{DB: db}, nil
}
