package handlers

import (
	"context"
	"fmt"

	"github.com/m3rciful/tonbot/core/logger"
)

// Disconnect drops the chat's wallet session.
func (s *Service) Disconnect(ctx context.Context, chatID int64) error {
	sess := s.reg.Session(chatID)
	sess.Lock()
	defer sess.Unlock()

	conn := s.connector(chatID)
	s.restore(ctx, chatID, conn)
	if !conn.Connected() {
		s.send(ctx, chatID, msgNoWallet)
		return nil
	}
	if err := conn.Disconnect(ctx); err != nil {
		logger.Warn(ctx, "ton", "disconnect.fail",
			logger.ErrAttr(err),
		)
	}
	s.send(ctx, chatID, msgDisconnected)
	return nil
}

// ShowWallet prints the connected wallet's name and address.
func (s *Service) ShowWallet(ctx context.Context, chatID int64) error {
	sess := s.reg.Session(chatID)
	sess.Lock()
	defer sess.Unlock()

	conn := s.connector(chatID)
	s.restore(ctx, chatID, conn)
	w := conn.Wallet()
	if !conn.Connected() || w == nil {
		s.send(ctx, chatID, msgNoWallet)
		return nil
	}
	s.send(ctx, chatID, fmt.Sprintf(msgWalletSummary, s.walletName(ctx, w.Device.AppName), friendlyAddress(w)))
	return nil
}

// Stats reports live sessions to an operator.
func (s *Service) Stats(ctx context.Context, chatID int64) error {
	st := s.reg.Stats()
	s.send(ctx, chatID, fmt.Sprintf("Sessions: %d\nPending connects: %d\nActive transfers: %d",
		st.Sessions, st.Pending, st.Flows))
	return nil
}
