// Package keyboard builds Telegram inline keyboards.
package keyboard

import (
	"log/slog"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn describes an inline button: a URL button when URL is set,
// otherwise a callback button routed by Unique with Data as payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

func (b InlineBtn) inline(markup *tele.ReplyMarkup) (tele.InlineButton, bool) {
	if b.URL != "" {
		return *markup.URL(b.Text, b.URL).Inline(), true
	}
	if _, err := callbacks.Encode(b.Unique, b.Data); err != nil {
		logger.TG.Warn("keyboard button dropped",
			slog.String("event", "keyboard.build"),
			slog.String("cb_key", b.Unique),
			logger.ErrAttr(err),
		)
		return tele.InlineButton{}, false
	}
	return *markup.Data(b.Text, b.Unique, b.Data).Inline(), true
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
// Buttons whose callback data is too long are dropped, as are rows left
// empty; nil is returned when nothing is left.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		out := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			if b, ok := btn.inline(markup); ok {
				out = append(out, b)
			}
		}
		if len(out) > 0 {
			inline = append(inline, out)
		}
	}
	if len(inline) == 0 {
		return nil
	}
	markup.InlineKeyboard = inline
	return markup
}

// Chunk splits buttons into rows of up to n; n < 1 means one per row.
func Chunk(buttons []InlineBtn, n int) [][]InlineBtn {
	n = max(n, 1)
	rows := make([][]InlineBtn, 0, (len(buttons)+n-1)/n)
	for start := 0; start < len(buttons); start += n {
		rows = append(rows, buttons[start:min(start+n, len(buttons))])
	}
	return rows
}
