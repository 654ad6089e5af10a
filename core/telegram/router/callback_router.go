package router

import (
	"log/slog"

	tg "github.com/m3rciful/tonbot/core/telegram"
	"github.com/m3rciful/tonbot/core/telegram/callbacks"
	"github.com/m3rciful/tonbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks through the registry
// by their unique key. Every callback is answered so the client stops its
// loading indicator.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		_ = c.Respond()

		key, _ := callbacks.ParseCallbackData(c.Callback())
		s := summary{
			handler: "callback." + normalizeHandlerName(key),
			extras:  []slog.Attr{slog.String("cb_key", key)},
		}

		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			h = opts.NotFound
			if h == nil {
				h = reg.CallbackNotFound()
			}
			s.status, s.outcome = "skip", "ignored"
			s.extras = append(s.extras, slog.String("reason", "not_found"))
		}
		return handleWithSummary(c, s, func() error {
			if h == nil {
				return nil
			}
			return h(c)
		})
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
