package middleware

import (
	"log/slog"
	"strings"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const receiptSlot = "receipt_logged"

// LoggerMiddleware stores the update's logging context and logs one sampled
// receipt line per update. Routes wrap the middleware again on their own
// branch, so the receipt is marked on the update's context.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logged, _ := c.Get(receiptSlot).(bool); !logged {
			c.Set(receiptSlot, true)
			if logger.ShouldSampleDebug("update.received") {
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c)...)
			}
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", tghelpers.RID(c)),
		slog.Int("update_id", upd.ID),
		slog.String("kind", updateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs,
			slog.Int64("chat_id", chat.ID),
			slog.String("chat_type", string(chat.Type)),
		)
	}
	if user := c.Sender(); user != nil {
		attrs = append(attrs, slog.Int64("user_id", user.ID))
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	case upd.Message != nil && upd.Message.Document != nil:
		attrs = append(attrs, slog.String("mime", upd.Message.Document.MIME))
	case upd.Message != nil:
		if t := upd.Message.Text; t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message == nil:
		return "other"
	case upd.Message.Document != nil:
		return "document"
	case strings.HasPrefix(upd.Message.Text, "/"):
		return "command"
	}
	return "message"
}
