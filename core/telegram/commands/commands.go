// Package commands describes slash commands and how user text maps onto them.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands run only for the configured operator and never
	// appear in the menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Visible reports whether the command belongs in the menu and /help.
func (c Command) Visible() bool {
	return !c.Hidden && !c.AdminOnly
}

// Valid reports whether c can be registered.
func (c Command) Valid() bool {
	return c.Handler != nil && strings.TrimSpace(c.Description) != ""
}

// Normalize maps message text to a command key: the first word, lowercased,
// with a leading slash and without a "@botname" suffix. "/Send_TX@tonbot 5"
// becomes "/send_tx". Empty text yields "".
func Normalize(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

// MenuText returns the form Telegram expects in the command menu.
func MenuText(key string) string {
	return strings.TrimPrefix(key, "/")
}
