package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/tonbot/core/config"
	"github.com/m3rciful/tonbot/core/database"
)

func newTestConnections(t *testing.T) *Connections {
	t.Helper()
	ctx := context.Background()
	db, err := database.Connect(ctx, &coreconfig.Config{Storage: coreconfig.StorageConfig{
		Driver:     coreconfig.StorageSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "tonbot.db"),
	}})
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations() error: %v", err)
	}
	return New(db)
}

func TestChatStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	conns := newTestConnections(t)
	a, b := conns.ForChat(1), conns.ForChat(2)

	if v, err := a.Get(ctx, "session"); err != nil || v != "" {
		t.Fatalf("Get(missing) = %q, %v; want empty", v, err)
	}
	if err := a.Set(ctx, "session", "one"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := a.Set(ctx, "session", "two"); err != nil {
		t.Fatalf("Set(overwrite) error: %v", err)
	}
	if v, _ := a.Get(ctx, "session"); v != "two" {
		t.Fatalf("Get() = %q, want two", v)
	}
	if v, _ := b.Get(ctx, "session"); v != "" {
		t.Fatalf("other chat sees %q", v)
	}

	if err := a.Delete(ctx, "session"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if v, _ := a.Get(ctx, "session"); v != "" {
		t.Fatalf("Get(after delete) = %q", v)
	}
}

func TestListAndPurge(t *testing.T) {
	ctx := context.Background()
	conns := newTestConnections(t)
	for _, chat := range []int64{3, 1} {
		if err := conns.ForChat(chat).Set(ctx, "session", "v"); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
	}
	rows, err := conns.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(rows) != 2 || rows[0].ChatID != 1 || rows[1].ChatID != 3 {
		t.Fatalf("List() = %+v", rows)
	}

	if n, err := conns.Purge(ctx, time.Now().Add(-time.Hour)); err != nil || n != 0 {
		t.Fatalf("Purge(old) = %d, %v; want 0", n, err)
	}
	if n, err := conns.Purge(ctx, time.Now().Add(time.Hour)); err != nil || n != 2 {
		t.Fatalf("Purge(future) = %d, %v; want 2", n, err)
	}
}
