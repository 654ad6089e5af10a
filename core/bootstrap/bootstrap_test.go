package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/tonbot/core/config"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMemorySkipsMigrations(t *testing.T) {
	migrated := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect:    func(context.Context, *coreconfig.Config) (*sqlx.DB, error) { return nil, nil },
		Migrate: func(context.Context, *sqlx.DB) error {
			migrated = true
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.DB != nil || migrated {
		t.Fatalf("memory storage: db=%v migrated=%v", res.DB, migrated)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	if _, err := Run(context.Background(), Options{}); err == nil {
		t.Fatalf("Run(nil config) expected error")
	}

	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want logger failure", err)
	}

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Connect:    func(context.Context, *coreconfig.Config) (*sqlx.DB, error) { return nil, boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want connect failure", err)
	}
}
