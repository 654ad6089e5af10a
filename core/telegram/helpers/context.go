package helpers

import (
	"context"
	"time"

	"github.com/m3rciful/tonbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Slots in tele.Context shared by middleware and helpers.
const (
	contextSlot     = "logger_ctx"
	ridSlot         = "rid"
	updateStartSlot = "update_start"
)

// StoreContext attaches reusable context to tele.Context for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextSlot, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextSlot).(context.Context)
	return ctx, ok && ctx != nil
}

// ChatID returns the update's chat id, or 0 for updates without a chat.
func ChatID(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}

// UserID returns the sender's id, or 0.
func UserID(c tele.Context) int64 {
	if user := c.Sender(); user != nil {
		return user.ID
	}
	return 0
}

// RID returns the update's request id, assigning one on first use.
func RID(c tele.Context) string {
	if rid, _ := c.Get(ridSlot).(string); rid != "" {
		return rid
	}
	rid := logger.BuildRID(c.Update().ID, ChatID(c), UserID(c))
	c.Set(ridSlot, rid)
	c.Set(updateStartSlot, time.Now())
	return rid
}

// UpdateStart returns when RID was first assigned for the update.
func UpdateStart(c tele.Context) (time.Time, bool) {
	t, ok := c.Get(updateStartSlot).(time.Time)
	return t, ok
}

// NewContext builds a fresh logging context for the update without storing it.
func NewContext(c tele.Context) context.Context {
	ctx := logger.WithRID(logger.Background(), RID(c))
	ctx = logger.WithUpdateMeta(ctx, c.Update().ID, UserID(c), ChatID(c))
	return logger.WithLogger(ctx, logger.TG)
}

// BuildContext returns the update's stored logging context, creating and
// storing it on first use.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	ctx := NewContext(c)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler enriches stored context with handler metadata for downstream logs.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
