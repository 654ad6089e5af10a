package handlers

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"

	tg "github.com/m3rciful/tonbot/core/telegram"
	"github.com/m3rciful/tonbot/core/telegram/callbacks"
	"github.com/m3rciful/tonbot/core/telegram/commands"
	"github.com/m3rciful/tonbot/core/telegram/format"
	tghelpers "github.com/m3rciful/tonbot/core/telegram/helpers"
	"github.com/m3rciful/tonbot/core/telegram/keyboard"
	"github.com/m3rciful/tonbot/core/telegram/middleware"
	"github.com/m3rciful/tonbot/tonbot/flow"

	tele "gopkg.in/telebot.v4"
)

// TelebotMessenger delivers messages through a telebot bot. Sends are
// synchronous to keep the chat's message order; deletes go through the
// async sender.
type TelebotMessenger struct {
	bot botAPI
}

// botAPI is the part of *tele.Bot the messenger uses.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// NewTelebotMessenger wraps bot.
func NewTelebotMessenger(bot botAPI) *TelebotMessenger {
	return &TelebotMessenger{bot: bot}
}

func (m *TelebotMessenger) Send(ctx context.Context, chatID int64, text string, kb [][]keyboard.InlineBtn) (int, error) {
	opts := &tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsRows(kb...), DisableWebPagePreview: true}
	msg, err := m.bot.Send(tele.ChatID(chatID), text, opts)
	if err != nil {
		return 0, err
	}
	middleware.CountSent(ctx, opts.ReplyMarkup != nil)
	return msg.ID, nil
}

func (m *TelebotMessenger) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string, kb [][]keyboard.InlineBtn) (int, error) {
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: caption}
	opts := &tele.SendOptions{ReplyMarkup: keyboard.InlineButtonsRows(kb...)}
	msg, err := m.bot.Send(tele.ChatID(chatID), photo, opts)
	if err != nil {
		return 0, err
	}
	middleware.CountSent(ctx, opts.ReplyMarkup != nil)
	return msg.ID, nil
}

func (m *TelebotMessenger) Delete(ctx context.Context, chatID int64, msgID int) error {
	return tghelpers.Enqueue(ctx, "delete", "deleteMessage", func() error {
		return m.bot.Delete(&tele.StoredMessage{MessageID: strconv.Itoa(msgID), ChatID: chatID})
	})
}

// Bot binds the Service to Telegram updates.
type Bot struct {
	svc *Service
	reg *tg.Registry
}

// NewBot returns the Telegram binding of svc.
func NewBot(svc *Service, reg *tg.Registry) *Bot {
	return &Bot{svc: svc, reg: reg}
}

// Register adds the bot commands and the flow's button callbacks to the
// registry.
func (b *Bot) Register() error {
	errs := []error{
		b.reg.RegisterCommand("/start", commands.Command{Handler: b.help, Description: "Start the bot", Hidden: true}),
		b.reg.RegisterCommand("/connect", commands.Command{Handler: b.chat(b.svc.Connect), Description: "Connect a TON wallet"}),
		b.reg.RegisterCommand("/send_tx", commands.Command{Handler: b.chat(b.svc.SendTx), Description: "Send TON or a jetton"}),
		b.reg.RegisterCommand("/my_wallet", commands.Command{Handler: b.chat(b.svc.ShowWallet), Description: "Show the connected wallet"}),
		b.reg.RegisterCommand("/disconnect", commands.Command{Handler: b.chat(b.svc.Disconnect), Description: "Disconnect the wallet"}),
		b.reg.RegisterCommand("/help", commands.Command{Handler: b.help, Description: "List commands"}),
		b.reg.RegisterCommand("/stats", commands.Command{Handler: b.chat(b.svc.Stats), Description: "Session statistics", AdminOnly: true}),
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	for _, key := range []string{flow.CallbackAsset, flow.CallbackConfirm} {
		if err := b.reg.RegisterCallback(key, b.callback); err != nil {
			return err
		}
	}
	b.reg.SetCallbackNotFound(b.UnknownCallback())
	return nil
}

const (
	msgUnknownText     = "Unknown command. Send /help to see what I can do"
	msgUnknownDocument = "I can't read files. Send /help to see what I can do"
)

// UnknownText answers text outside commands and conversations.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error { return tghelpers.Reply(c, msgUnknownText) }
}

func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error { return tghelpers.Reply(c, msgUnknownDocument) }
}

// UnknownCallback drops presses of stale buttons, e.g. a confirm keyboard of
// a finished conversation.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(tele.Context) error { return nil }
}

// InProgress implements router.Conversation.
func (b *Bot) InProgress(chatID int64) bool { return b.svc.InProgress(chatID) }

// HandleText feeds the chat's text to its send-transaction conversation.
func (b *Bot) HandleText(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	_, err := b.svc.HandleText(tghelpers.BuildContext(c), chat.ID, c.Text())
	return err
}

func (b *Bot) callback(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	key, payload := callbacks.ParseCallbackData(c.Callback())
	_, err := b.svc.HandleCallback(tghelpers.BuildContext(c), chat.ID, key, payload)
	return err
}

func (b *Bot) chat(fn func(ctx context.Context, chatID int64) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return nil
		}
		return fn(tghelpers.BuildContext(c), chat.ID)
	}
}

func (b *Bot) help(c tele.Context) error {
	return tghelpers.Reply(c, HelpText(b.reg.ListCommands(true)), tghelpers.Markdown())
}

// HelpText renders the command menu as Markdown.
func HelpText(cmds []tele.Command) string {
	var sb strings.Builder
	md := format.MarkdownV1
	sb.WriteString(md.Bold("TON wallet bot"))
	sb.WriteString("\n\n")
	for _, cmd := range cmds {
		sb.WriteString(md.Escape(cmd.Text + " - " + cmd.Description))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// OnAdminReject answers a non-operator calling an operator command.
func OnAdminReject(c tele.Context) error {
	return tghelpers.Reply(c, "This command is only available to the bot operator")
}
