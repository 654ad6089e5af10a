// Package handlers implements the bot commands on top of the session
// registry, the send-transaction state machine and a Messenger port.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/metrics"
	"github.com/m3rciful/tonbot/core/telegram/keyboard"
	"github.com/m3rciful/tonbot/tonbot/address"
	"github.com/m3rciful/tonbot/tonbot/flow"
	"github.com/m3rciful/tonbot/tonbot/session"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

// Messenger is the chat side the handlers talk to.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, kb [][]keyboard.InlineBtn) (int, error)
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string, kb [][]keyboard.InlineBtn) (int, error)
	Delete(ctx context.Context, chatID int64, msgID int) error
}

// WalletDirectory lists the wallets a chat can connect.
type WalletDirectory interface {
	Wallets(ctx context.Context) ([]tonconnect.WalletInfo, error)
	WalletInfo(ctx context.Context, appName string) (tonconnect.WalletInfo, bool)
}

// Options configures New.
type Options struct {
	Registry  *session.Registry
	Messenger Messenger
	Wallets   WalletDirectory
	Machine   flow.Machine
	// TxTimeout is both the transaction validity window and the wait for
	// the wallet's answer.
	TxTimeout time.Duration
	// BotLink is the return strategy handed to Telegram wallets.
	BotLink string
	// SessionTTL evicts chats idle for longer; 0 keeps them forever.
	SessionTTL time.Duration
	Metrics    *metrics.Registry
	Now        func() time.Time
}

// Service runs the command handlers. It is safe for concurrent use.
type Service struct {
	reg        *session.Registry
	msgr       Messenger
	wallets    WalletDirectory
	machine    flow.Machine
	txTimeout  time.Duration
	botLink    string
	sessionTTL time.Duration
	metrics    *metrics.Registry
	now        func() time.Time
	newID      func() string
}

// New returns a Service.
func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		reg:        opts.Registry,
		msgr:       opts.Messenger,
		wallets:    opts.Wallets,
		machine:    opts.Machine,
		txTimeout:  opts.TxTimeout,
		botLink:    opts.BotLink,
		sessionTTL: opts.SessionTTL,
		metrics:    opts.Metrics,
		now:        now,
		newID:      uuid.NewString,
	}
}

const (
	msgNoWallet      = "You didn't connect a wallet"
	msgDisconnected  = "Wallet has been disconnected"
	msgWalletSummary = "Connected wallet: %s\nYour address: %s"
)

// walletName resolves the directory name of a connected wallet.
func (s *Service) walletName(ctx context.Context, appName string) string {
	if s.wallets != nil {
		if info, ok := s.wallets.WalletInfo(ctx, appName); ok && info.Name != "" {
			return info.Name
		}
	}
	return appName
}

func friendlyAddress(w *tonconnect.Wallet) string {
	return address.FriendlyOrRaw(w.Account.Address, w.Testnet())
}

// send delivers text and logs a failure.
func (s *Service) send(ctx context.Context, chatID int64, text string, kb ...[]keyboard.InlineBtn) int {
	id, err := s.msgr.Send(ctx, chatID, text, kb)
	if err != nil {
		logger.Warn(ctx, "tg", "send.fail",
			slog.Int64("chat_id", chatID),
			logger.ErrAttr(err),
		)
	}
	return id
}

// restore resumes the chat's persisted wallet session.
func (s *Service) restore(ctx context.Context, chatID int64, conn tonconnect.Connector) {
	if err := conn.RestoreConnection(ctx); err != nil {
		logger.Warn(ctx, "ton", "restore.fail",
			slog.Int64("chat_id", chatID),
			logger.ErrAttr(err),
		)
	}
}

// connector returns the chat's connector. A disconnect of the chat supersedes
// whatever connect request is still on screen.
func (s *Service) connector(chatID int64) tonconnect.Connector {
	return s.reg.Connector(chatID, func() { s.reg.TriggerAndClear(chatID) })
}
