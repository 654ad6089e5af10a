package middleware

import (
	"log/slog"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions configures the operator gate.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

func (o AdminOptions) allows(u *tele.User) bool {
	return o.AdminID != 0 && u != nil && u.ID == o.AdminID
}

// AdminOnlyMiddleware lets only the configured operator reach next. With no
// operator configured every caller is rejected. Rejections are logged.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.allows(c.Sender()) {
				return next(c)
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "admin.reject",
				slog.String("command", commands.Normalize(c.Text())),
				slog.Bool("admin_configured", opts.AdminID != 0),
			)
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
