package router

import (
	"time"

	tg "github.com/m3rciful/tonbot/core/telegram"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"
	"github.com/m3rciful/tonbot/core/telegram/middleware"
	"github.com/m3rciful/tonbot/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// Conversation is a per-chat dialog that consumes plain text while in progress.
type Conversation interface {
	InProgress(chatID int64) bool
	HandleText(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	Fallbacks ui.FallbackProvider
}

// TextRoutes builds the text and document routes. Unmatched updates go to
// the fallbacks, or are logged as ignored when there are none.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	var unknownText, unknownDoc tele.HandlerFunc
	if opts.Fallbacks != nil {
		unknownText = opts.Fallbacks.UnknownText()
		unknownDoc = opts.Fallbacks.UnknownDocument()
	}

	onText := func(c tele.Context) error {
		name, h := resolveText(c, conv, reg, unknownText)
		return runOrIgnore(c, name, h)
	}
	onDocument := func(c tele.Context) error {
		return runOrIgnore(c, "unexpected_document", unknownDoc)
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(onText)},
		{Endpoint: tele.OnDocument, Handler: wrap(onDocument)},
	}
}

// resolveText picks the handler for a text message: the chat's conversation,
// then a command or alias, then the registry fallback, then unknown.
func resolveText(c tele.Context, conv Conversation, reg *tg.Registry, unknown tele.HandlerFunc) (string, tele.HandlerFunc) {
	if conv != nil && conv.InProgress(tghelpers.ChatID(c)) {
		return "conversation", conv.HandleText
	}
	if reg != nil {
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
			return normalizeHandlerName(key), cmd.Handler
		}
		if fb := reg.TextFallback(); fb != nil {
			return "fallback", fb
		}
	}
	return "unknown_text", unknown
}

func runOrIgnore(c tele.Context, name string, h tele.HandlerFunc) error {
	if h == nil {
		logHandlerSummary(c, summary{handler: name, status: "skip", outcome: "ignored"}, time.Now(), nil)
		return nil
	}
	return handleWithSummary(c, summary{handler: name}, func() error { return h(c) })
}
