package state

import tele "gopkg.in/telebot.v4"

// Touch marks the chat's entry as seen on every update so idle sweeps only
// evict chats that stopped talking to the bot.
func Touch[T any](s *Store[T]) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if chat := c.Chat(); chat != nil {
				s.Touch(chat.ID)
			}
			return next(c)
		}
	}
}
