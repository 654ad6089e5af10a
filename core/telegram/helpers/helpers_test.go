package helpers

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/tonbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

type replyContext struct {
	tele.Context
	update tele.Update
	store  map[string]any
	text   string
	opts   *tele.SendOptions
}

func newReplyContext(chatID int64) *replyContext {
	return &replyContext{
		update: tele.Update{ID: 7, Message: &tele.Message{
			Sender: &tele.User{ID: chatID},
			Chat:   &tele.Chat{ID: chatID},
		}},
		store: make(map[string]any),
	}
}

func (f *replyContext) Update() tele.Update   { return f.update }
func (f *replyContext) Get(key string) any    { return f.store[key] }
func (f *replyContext) Set(key string, v any) { f.store[key] = v }
func (f *replyContext) Chat() *tele.Chat      { return f.update.Message.Chat }
func (f *replyContext) Sender() *tele.User    { return f.update.Message.Sender }

func (f *replyContext) Send(what interface{}, opts ...interface{}) error {
	f.text, _ = what.(string)
	if len(opts) > 0 {
		f.opts, _ = opts[0].(*tele.SendOptions)
	}
	return nil
}

func TestReplyAppliesOptionsInline(t *testing.T) {
	SetDispatcher(nil)
	c := newReplyContext(42)
	markup := &tele.ReplyMarkup{}

	if err := Reply(c, "hi", Markdown(), Quiet(), WithMarkup(markup), WithMarkup(nil)); err != nil {
		t.Fatalf("Reply() error: %v", err)
	}
	if c.text != "hi" || c.opts == nil {
		t.Fatalf("sent %q with %+v", c.text, c.opts)
	}
	if !c.opts.DisableWebPagePreview || !c.opts.DisableNotification {
		t.Fatalf("options = %+v, want preview and notification off", c.opts)
	}
	if c.opts.ParseMode != tele.ModeMarkdown || c.opts.ReplyMarkup != markup {
		t.Fatalf("options = %+v, want markdown with markup", c.opts)
	}
}

func TestEnqueueWithoutDispatcherRunsInline(t *testing.T) {
	SetDispatcher(nil)
	boom := errors.New("boom")
	if err := Enqueue(context.Background(), "send.text", "sendMessage", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Enqueue() = %v, want the call's error", err)
	}
}

func TestBuildContextIsStoredOnce(t *testing.T) {
	c := newReplyContext(5)
	first := BuildContext(c)
	if BuildContext(c) != first {
		t.Fatalf("BuildContext() built a second context")
	}
	if got := logger.RIDFrom(first); got == "" || got != RID(c) {
		t.Fatalf("rid = %q, want %q", got, RID(c))
	}
	if _, ok := UpdateStart(c); !ok {
		t.Fatalf("UpdateStart() missing after RID")
	}

	withHandler := WithHandler(c, "connect")
	if stored, _ := ContextFrom(c); stored != withHandler {
		t.Fatalf("WithHandler() did not store the enriched context")
	}
	if ChatID(c) != 5 || UserID(c) != 5 {
		t.Fatalf("ChatID/UserID = %d/%d, want 5/5", ChatID(c), UserID(c))
	}
}
