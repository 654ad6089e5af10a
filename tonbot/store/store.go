// Package store keeps TON Connect bridge sessions in SQL so a chat's wallet
// connection survives restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

// Connections is the ton_connections table.
type Connections struct {
	db *sqlx.DB
}

// New wraps db. The table is created by the core/database migrations.
func New(db *sqlx.DB) *Connections {
	return &Connections{db: db}
}

// ForChat scopes the table to one chat.
func (c *Connections) ForChat(chatID int64) tonconnect.Storage {
	return &chatStorage{db: c.db, chatID: chatID}
}

// Row is one stored value.
type Row struct {
	ChatID    int64     `db:"chat_id"`
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// List returns the stored rows ordered by chat.
func (c *Connections) List(ctx context.Context) ([]Row, error) {
	var rows []Row
	q := `SELECT chat_id, key, value, updated_at FROM ton_connections ORDER BY chat_id, key`
	if err := c.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return rows, nil
}

// Purge deletes rows not updated since before.
func (c *Connections) Purge(ctx context.Context, before time.Time) (int64, error) {
	q := c.db.Rebind(`DELETE FROM ton_connections WHERE updated_at < ?`)
	res, err := c.db.ExecContext(ctx, q, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge connections: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.LogEvent(ctx, logger.Store, slog.LevelInfo, "store.purge", slog.Int64("count", n))
	}
	return n, nil
}

type chatStorage struct {
	db     *sqlx.DB
	chatID int64
}

func (s *chatStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	q := s.db.Rebind(`SELECT value FROM ton_connections WHERE chat_id = ? AND key = ?`)
	err := s.db.GetContext(ctx, &value, q, s.chatID, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		s.fail(ctx, "store.get", key, err)
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *chatStorage) Set(ctx context.Context, key, value string) error {
	q := s.db.Rebind(`INSERT INTO ton_connections (chat_id, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (chat_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if _, err := s.db.ExecContext(ctx, q, s.chatID, key, value, time.Now().UTC()); err != nil {
		s.fail(ctx, "store.set", key, err)
		return fmt.Errorf("set %s: %w", key, err)
	}
	logger.LogEvent(ctx, logger.Store, slog.LevelDebug, "store.set",
		slog.Int64("chat_id", s.chatID),
		slog.String("key", key),
	)
	return nil
}

func (s *chatStorage) Delete(ctx context.Context, key string) error {
	q := s.db.Rebind(`DELETE FROM ton_connections WHERE chat_id = ? AND key = ?`)
	if _, err := s.db.ExecContext(ctx, q, s.chatID, key); err != nil {
		s.fail(ctx, "store.delete", key, err)
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *chatStorage) fail(ctx context.Context, event, key string, err error) {
	logger.LogEvent(ctx, logger.Store, slog.LevelWarn, event,
		slog.Int64("chat_id", s.chatID),
		slog.String("key", key),
		logger.ErrAttr(err),
	)
}

var _ tonconnect.ChatStorage = (*Connections)(nil)
