// Package callbacks encodes and decodes inline button callback data.
package callbacks

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxDataLen is Telegram's limit on callback_data, in bytes.
const MaxDataLen = 64

// Encode returns the callback_data Telebot sends for a button with unique
// and payload, or an error when it would exceed MaxDataLen.
func Encode(unique, payload string) (string, error) {
	data := "\f" + unique
	if payload != "" {
		data += "|" + payload
	}
	if len(data) > MaxDataLen {
		return "", fmt.Errorf("callback data for %q is %d bytes, limit %d", unique, len(data), MaxDataLen)
	}
	return data, nil
}

// ParseCallbackData returns the unique key and payload of a callback.
// Callbacks routed through a registered button already carry Unique; the
// generic OnCallback handler sees the raw "\f<unique>|<payload>".
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(unique), payload
}
