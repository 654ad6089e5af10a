package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by Reply and Enqueue.
// nil unwires it and calls run inline again.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// Enqueue runs an outbound call on the async dispatcher, or inline when no
// dispatcher is wired or its queue cannot take the job.
func Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}
	err := disp.Enqueue(ctx, action, endpoint, run)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			logger.ErrAttr(err),
		)
		return run()
	}
	return err
}

// SendOption adjusts an outgoing reply.
type SendOption func(*tele.SendOptions)

// Markdown sends the text with the legacy Markdown parse mode.
func Markdown() SendOption {
	return func(o *tele.SendOptions) { o.ParseMode = tele.ModeMarkdown }
}

// WithMarkup attaches a reply markup; nil is ignored.
func WithMarkup(rm *tele.ReplyMarkup) SendOption {
	return func(o *tele.SendOptions) {
		if rm != nil {
			o.ReplyMarkup = rm
		}
	}
}

// Quiet delivers the message without a notification sound.
func Quiet() SendOption {
	return func(o *tele.SendOptions) { o.DisableNotification = true }
}

// Reply sends text to the chat of the current update through the sender
// queue. Link previews are always off.
func Reply(c tele.Context, text string, opts ...SendOption) error {
	so := &tele.SendOptions{DisableWebPagePreview: true}
	for _, opt := range opts {
		opt(so)
	}
	return Enqueue(BuildContext(c), "send.text", "sendMessage", func() error {
		return c.Send(text, so)
	})
}
