package handlers

import (
	"context"
	"testing"

	tg "github.com/m3rciful/tonbot/core/telegram"
	"github.com/m3rciful/tonbot/core/telegram/router"
	"github.com/m3rciful/tonbot/tonbot/flow"

	tele "gopkg.in/telebot.v4"
)

type callbackContext struct {
	tele.Context
	update   tele.Update
	store    map[string]any
	answered int
}

func newCallbackContext(chatID int64, unique, data string) *callbackContext {
	user := &tele.User{ID: chatID}
	return &callbackContext{
		update: tele.Update{ID: 3, Callback: &tele.Callback{
			Sender:  user,
			Unique:  unique,
			Data:    data,
			Message: &tele.Message{Chat: &tele.Chat{ID: chatID}},
		}},
		store: make(map[string]any),
	}
}

func (c *callbackContext) Update() tele.Update      { return c.update }
func (c *callbackContext) Callback() *tele.Callback { return c.update.Callback }
func (c *callbackContext) Sender() *tele.User       { return c.update.Callback.Sender }
func (c *callbackContext) Chat() *tele.Chat         { return c.update.Callback.Message.Chat }
func (c *callbackContext) Get(key string) any       { return c.store[key] }
func (c *callbackContext) Set(key string, v any)    { c.store[key] = v }

func (c *callbackContext) Respond(...*tele.CallbackResponse) error {
	c.answered++
	return nil
}

func TestCallbackAnsweredOnce(t *testing.T) {
	env := newTestEnv(t, 0)
	reg := tg.NewRegistry()
	if err := NewBot(env.svc, reg).Register(); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := env.svc.SendTx(context.Background(), testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}

	route := router.CallbackRoute(reg, router.CallbackOptions{})
	c := newCallbackContext(testChat, flow.CallbackAsset, "native")
	if err := route.Handler(c); err != nil {
		t.Fatalf("callback error: %v", err)
	}
	if c.answered != 1 {
		t.Fatalf("callback answered %d times, want 1", c.answered)
	}
	if last := env.msgr.last().text; last != "Please input withdrawal address" {
		t.Fatalf("reply = %q, want the address prompt", last)
	}
}
