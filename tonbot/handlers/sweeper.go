package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/tonbot/session"
)

// SweepStats reports what one sweep did.
type SweepStats struct {
	Expired int
	Evicted int
}

// Sweep expires overdue conversations and evicts chats idle for longer than
// the session TTL.
func (s *Service) Sweep(ctx context.Context) SweepStats {
	var (
		stats    SweepStats
		sessions []*session.ChatSession
	)
	s.reg.Store().Range(func(_ int64, sess *session.ChatSession) bool {
		sessions = append(sessions, sess)
		return true
	})
	for _, sess := range sessions {
		if s.expire(ctx, sess) {
			stats.Expired++
		}
	}

	if s.sessionTTL > 0 {
		for _, chatID := range s.reg.Store().Idle(s.sessionTTL) {
			if s.reg.Remove(chatID) {
				stats.Evicted++
			}
		}
	}

	s.metrics.SetSessions(s.reg.Len())
	if stats.Expired > 0 || stats.Evicted > 0 {
		logger.Info(ctx, "flow", "sweep",
			slog.Int("expired", stats.Expired),
			slog.Int("evicted", stats.Evicted),
			slog.Int("sessions", s.reg.Len()),
		)
	}
	return stats
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}
