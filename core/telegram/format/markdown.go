// Package format escapes text for Telegram parse modes.
package format

import "regexp"

// Version selects a Telegram Markdown dialect.
type Version int

const (
	// MarkdownV1 is the legacy "Markdown" parse mode.
	MarkdownV1 Version = 1
	// MarkdownV2 is the "MarkdownV2" parse mode.
	MarkdownV2 Version = 2
)

var (
	mdV1Re = regexp.MustCompile("([_*`\\[])")
	mdV2Re = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!\\])`)
)

// Escape backslash-escapes every character v treats as markup. Unknown
// versions return text unchanged.
func (v Version) Escape(text string) string {
	switch v {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`)
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\$1`)
	}
	return text
}

// Bold wraps escaped text in the dialect's bold markers.
func (v Version) Bold(text string) string {
	return "*" + v.Escape(text) + "*"
}
