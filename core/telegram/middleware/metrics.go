package middleware

import (
	"context"
	"sync/atomic"

	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Counters tracks what a handler sent in reply to one update. Messages may
// be sent from goroutines outliving the handler, hence the atomics.
type Counters struct {
	messages atomic.Int64
	keyboard atomic.Bool
}

type countersKey struct{}

const countersSlot = "reply_counters"

// CountSent records one outgoing message on the counters carried by ctx.
func CountSent(ctx context.Context, withKeyboard bool) {
	if ctx == nil {
		return
	}
	cnt, ok := ctx.Value(countersKey{}).(*Counters)
	if !ok {
		return
	}
	cnt.messages.Add(1)
	if withKeyboard {
		cnt.keyboard.Store(true)
	}
}

// MessageMetricsMiddleware attaches reply counters to the update's logging
// context so outgoing messages can be summarized per handler.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		cnt := &Counters{}
		c.Set(countersSlot, cnt)
		ctx := context.WithValue(tghelpers.BuildContext(c), countersKey{}, cnt)
		tghelpers.StoreContext(c, ctx)
		return next(c)
	}
}

// GetCounters reads message count and keyboard presence for the update.
func GetCounters(c tele.Context) (int, bool) {
	cnt, ok := c.Get(countersSlot).(*Counters)
	if !ok {
		return 0, false
	}
	return int(cnt.messages.Load()), cnt.keyboard.Load()
}
