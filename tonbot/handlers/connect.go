package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/keyboard"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

const (
	msgAlreadyConnected = "You have already connect %s wallet\nYour address: %s\n\n Disconnect wallet firstly to connect a new one"
	msgConnected        = "%s wallet connected successfully"
	msgConnectFailed    = "Could not create a connect link, please try again"

	walletButtonsPerRow = 2
	maxWalletButtons    = 8
	qrSize              = 256
)

// transientMessage is a bot message that must be deleted at most once, even
// when the deletion is requested before the message id is known.
type transientMessage struct {
	id        atomic.Int64
	requested atomic.Bool
	deleted   atomic.Bool
}

func (m *transientMessage) setID(ctx context.Context, msgr Messenger, chatID int64, id int) {
	m.id.Store(int64(id))
	if m.requested.Load() {
		m.deleteNow(ctx, msgr, chatID)
	}
}

func (m *transientMessage) delete(ctx context.Context, msgr Messenger, chatID int64) {
	m.requested.Store(true)
	m.deleteNow(ctx, msgr, chatID)
}

func (m *transientMessage) deleteNow(ctx context.Context, msgr Messenger, chatID int64) {
	id := m.id.Load()
	if id == 0 || !m.deleted.CompareAndSwap(false, true) {
		return
	}
	if err := msgr.Delete(ctx, chatID, int(id)); err != nil {
		logger.Warn(ctx, "tg", "delete.fail",
			slog.Int64("chat_id", chatID),
			slog.Int64("message_id", id),
			logger.ErrAttr(err),
		)
	}
}

// connectRequest is one displayed QR code waiting for a wallet.
type connectRequest struct {
	svc    *Service
	ctx    context.Context
	chatID int64
	qr     transientMessage

	mu          sync.Mutex
	unsubscribe func()
	token       uint64
	done        bool
}

// finish marks the request over and returns what is left to release.
func (r *connectRequest) finish() (func(), uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil, 0, false
	}
	r.done = true
	return r.unsubscribe, r.token, true
}

// cancel is the chat's pending entry: a newer /connect, a disconnect or an
// eviction runs it.
func (r *connectRequest) cancel() {
	unsubscribe, _, ok := r.finish()
	if !ok {
		return
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	r.qr.delete(r.ctx, r.svc.msgr, r.chatID)
	r.svc.metrics.IncConnect("cancelled")
	logger.Debug(r.ctx, "ton", "connect.cancelled")
}

// abort releases a request that failed before the QR code was shown.
func (r *connectRequest) abort() {
	unsubscribe, token, ok := r.finish()
	if !ok {
		return
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	r.svc.reg.ClearPendingIf(r.chatID, token)
}

func (r *connectRequest) onStatus(w *tonconnect.Wallet) {
	if w == nil {
		return
	}
	unsubscribe, token, ok := r.finish()
	if !ok {
		return
	}
	r.qr.delete(r.ctx, r.svc.msgr, r.chatID)
	r.svc.send(r.ctx, r.chatID, fmt.Sprintf(msgConnected, r.svc.walletName(r.ctx, w.Device.AppName)))
	if unsubscribe != nil {
		unsubscribe()
	}
	r.svc.reg.ClearPendingIf(r.chatID, token)
	r.svc.metrics.IncConnect("connected")
	logger.Info(r.ctx, "ton", "connect.done",
		slog.String("status", "ok"),
		slog.String("wallet", w.Device.AppName),
		slog.String("network", w.Account.Chain),
	)
}

// Connect shows a connect QR code with one deep link per wallet, or reports
// the wallet already connected. A previous connect request of the chat is
// superseded first.
func (s *Service) Connect(ctx context.Context, chatID int64) error {
	sess := s.reg.Session(chatID)
	sess.Lock()
	defer sess.Unlock()

	s.reg.TriggerAndClear(chatID)

	conn := s.connector(chatID)
	s.restore(ctx, chatID, conn)
	if conn.Connected() {
		if w := conn.Wallet(); w != nil {
			s.send(ctx, chatID, fmt.Sprintf(msgAlreadyConnected, s.walletName(ctx, w.Device.AppName), friendlyAddress(w)))
			s.metrics.IncConnect("already_connected")
			return nil
		}
	}

	req := &connectRequest{svc: s, ctx: context.WithoutCancel(ctx), chatID: chatID}
	req.mu.Lock()
	req.unsubscribe = conn.OnStatusChange(req.onStatus)
	req.token = s.reg.SetPending(chatID, req.cancel)
	req.mu.Unlock()

	wallets, err := s.wallets.Wallets(ctx)
	if err != nil && len(wallets) == 0 {
		s.connectFailed(ctx, chatID, req, "list_wallets", err)
		return nil
	}

	link, err := conn.Connect(ctx, wallets)
	if err != nil {
		s.connectFailed(ctx, chatID, req, "connect_request", err)
		return nil
	}

	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		s.connectFailed(ctx, chatID, req, "render_qr", err)
		return nil
	}

	id, err := s.msgr.SendPhoto(ctx, chatID, png, "", s.connectKeyboard(link, wallets))
	if err != nil {
		s.connectFailed(ctx, chatID, req, "send_qr", err)
		return nil
	}
	req.qr.setID(req.ctx, s.msgr, chatID, id)

	logger.Info(ctx, "ton", "connect.shown",
		slog.String("status", "ok"),
		slog.Int("count", len(wallets)),
	)
	return nil
}

// connectFailed drops the pending request and tells the chat; the error
// ends here.
func (s *Service) connectFailed(ctx context.Context, chatID int64, req *connectRequest, stage string, err error) {
	req.abort()
	s.metrics.IncConnect("failed")
	logger.Warn(ctx, "ton", "connect.fail",
		slog.String("stage", stage),
		logger.ErrAttr(err),
	)
	s.send(ctx, chatID, msgConnectFailed)
}

// connectKeyboard puts one button per wallet, two per row, and a final
// "Open Link" row with the universal redirect page.
func (s *Service) connectKeyboard(link string, wallets []tonconnect.WalletInfo) [][]keyboard.InlineBtn {
	btns := make([]keyboard.InlineBtn, 0, maxWalletButtons)
	for _, w := range wallets {
		if w.UniversalLink == "" {
			continue
		}
		u := tonconnect.ConvertToUniversalLink(link, w.UniversalLink)
		if tonconnect.IsTelegramURL(u) {
			u = tonconnect.AddReturnStrategy(u, s.botLink)
		}
		btns = append(btns, keyboard.InlineBtn{Text: w.Name, URL: u})
		if len(btns) == maxWalletButtons {
			break
		}
	}
	rows := keyboard.Chunk(btns, walletButtonsPerRow)
	return append(rows, []keyboard.InlineBtn{{Text: "Open Link", URL: tonconnect.OpenLinkURL(link)}})
}
