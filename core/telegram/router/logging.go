package router

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/tonbot/core/logger"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"
	"github.com/m3rciful/tonbot/core/telegram/middleware"
	"github.com/m3rciful/tonbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// summary describes one handler run for the handler.handled log line.
// Empty status and outcome are derived from the handler's error.
type summary struct {
	handler string
	status  string
	outcome string
	extras  []slog.Attr
}

func handleWithSummary(c tele.Context, s summary, fn func() error) error {
	start := time.Now()
	tghelpers.WithHandler(c, s.handler)
	err := fn()
	logHandlerSummary(c, s, start, err)
	return err
}

func logHandlerSummary(c tele.Context, s summary, start time.Time, err error) {
	ctx := tghelpers.WithHandler(c, s.handler)
	msgs, kb := middleware.GetCounters(c)

	status, outcome := s.status, s.outcome
	if status == "" {
		status = "ok"
		if err != nil {
			status = "fail"
		}
	}
	if outcome == "" {
		outcome = status
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", s.handler),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
	}
	if received, ok := tghelpers.UpdateStart(c); ok {
		attrs = append(attrs, slog.Int64("total_ms", logger.RoundMS(time.Since(received)).Milliseconds()))
	}
	if err != nil {
		attrs = append(attrs,
			logger.ErrAttr(err),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	attrs = append(attrs, s.extras...)
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

// deriveErrorCode prefers an error's own Code() and falls back to the
// Telegram error kind.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c interface{ Code() string }
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	return strings.ToUpper(sender.Classify(err))
}
