// Package ui holds the user-facing contracts shared by routers and bots.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider answers updates that reach no command, no registered
// callback and no conversation. A nil handler means "ignore".
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
