package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/tonbot/core/logger"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const (
	msgInternalError = "Something went wrong. Please try again."
	maxStackBytes    = 4096
)

// RecoverMiddleware turns a handler panic into an error log and a short
// apology to the chat. The update is then treated as handled.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			if len(stack) > maxStackBytes {
				stack = stack[:maxStackBytes]
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(stack)),
			)
			if c.Chat() != nil {
				_ = tghelpers.Reply(c, msgInternalError)
			}
			err = nil
		}()
		return next(c)
	}
}
