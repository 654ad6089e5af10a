// Package state keeps per-chat entries for Telegram bots: an in-memory,
// mutex-guarded map keyed by chat id with last-seen tracking for idle sweeps.
// It is domain-agnostic; bots store their own session type in it.
package state
