package router

import (
	"log/slog"

	"github.com/m3rciful/tonbot/core/logger"
	tg "github.com/m3rciful/tonbot/core/telegram"
	"github.com/m3rciful/tonbot/core/telegram/commands"
	"github.com/m3rciful/tonbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the operator gate for admin commands.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command, in registration
// order. Admin commands sit behind the operator gate.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	gate := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	names := reg.Names()
	routes := make([]tg.Route, 0, len(names))
	for _, key := range names {
		cmd, ok := reg.Command(key)
		if !ok {
			continue
		}
		routes = append(routes, tg.Route{Endpoint: key, Handler: commandHandler(key, cmd, gate)})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

func commandHandler(key string, cmd commands.Command, gate tele.MiddlewareFunc) tele.HandlerFunc {
	s := summary{handler: normalizeHandlerName(key)}
	h := func(c tele.Context) error {
		return handleWithSummary(c, s, func() error { return cmd.Handler(c) })
	}
	if cmd.AdminOnly {
		h = gate(h)
	}
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}
