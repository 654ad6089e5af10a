package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/tonbot/core/logger"
	"github.com/m3rciful/tonbot/core/telegram/keyboard"
	"github.com/m3rciful/tonbot/tonbot/flow"
	"github.com/m3rciful/tonbot/tonbot/session"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

const (
	msgNotConnected   = "Please Connect wallet to send transaction \n Finish Process"
	msgTxSent         = "Transaction sent successfully"
	msgTxNotConfirmed = "Transaction was not confirmed"
	msgTxRejected     = "You rejected the transaction"
	msgTxUnknown      = "Unknown error happened"
	msgOpenWallet     = "Open %s and confirm transaction"

	defaultTxTimeout = 10 * time.Minute
)

// SendTx starts the send-transaction conversation. An active conversation of
// the chat is replaced.
func (s *Service) SendTx(ctx context.Context, chatID int64) error {
	sess := s.reg.Session(chatID)
	sess.Lock()
	defer sess.Unlock()

	s.connector(chatID)
	if _, prev, ok := sess.Flow(); ok {
		logger.Info(logger.WithFlowID(ctx, prev), "flow", "flow.replaced")
	}

	id := s.newID()
	ctx = logger.WithFlowID(ctx, id)
	res := s.machine.Start(s.now())
	sess.SetFlow(res.State, id)
	s.metrics.IncFlowEvent("start", "ok")
	logger.Info(ctx, "flow", "flow.start", slog.String("step", string(res.State.Step)))
	s.reply(ctx, chatID, res.Replies)
	return nil
}

// InProgress reports whether the chat has a conversation waiting for input.
func (s *Service) InProgress(chatID int64) bool {
	sess, ok := s.reg.Get(chatID)
	if !ok {
		return false
	}
	_, _, ok = sess.Flow()
	return ok
}

// HandleText feeds a text message to the chat's conversation. handled is
// false when no conversation is waiting for text.
func (s *Service) HandleText(ctx context.Context, chatID int64, text string) (bool, error) {
	return s.step(ctx, chatID, flow.Text{Text: text})
}

// HandleCallback feeds an inline button press to the chat's conversation.
func (s *Service) HandleCallback(ctx context.Context, chatID int64, key, data string) (bool, error) {
	return s.step(ctx, chatID, flow.Callback{Key: key, Data: data})
}

func (s *Service) step(ctx context.Context, chatID int64, ev flow.Event) (bool, error) {
	sess, ok := s.reg.Get(chatID)
	if !ok {
		return false, nil
	}
	sess.Lock()
	defer sess.Unlock()

	st, id, ok := sess.Flow()
	if !ok {
		return false, nil
	}
	ctx = logger.WithFlowID(ctx, id)
	if st.Expired(s.now()) {
		ev = flow.Expire{}
	}

	res := s.machine.Step(st, ev)
	if !res.Handled {
		s.metrics.IncFlowEvent(string(st.Step), "ignored")
		logger.Debug(ctx, "flow", "flow.ignored",
			slog.String("step", string(st.Step)),
			slog.String("outcome", "ignored"),
		)
		return false, nil
	}

	sess.SetFlow(res.State, id)
	outcome := stepOutcome(res.State.Step)
	s.metrics.IncFlowEvent(string(st.Step), outcome)
	logger.Info(ctx, "flow", "flow.step",
		slog.String("step", string(st.Step)),
		slog.String("next_step", string(res.State.Step)),
		slog.String("asset_kind", string(res.State.Draft.AssetKind)),
		slog.String("outcome", outcome),
	)
	s.reply(ctx, chatID, res.Replies)

	if res.Execute != nil {
		s.execute(ctx, chatID, *res.Execute)
	}
	return true, nil
}

func stepOutcome(next flow.Step) string {
	switch next {
	case flow.StepHalted:
		return "rejected"
	case flow.StepCancelled:
		return "cancelled"
	case flow.StepExpired:
		return "expired"
	}
	return "ok"
}

// reply sends the machine's replies in order, one button row each.
func (s *Service) reply(ctx context.Context, chatID int64, replies []flow.Reply) {
	for _, r := range replies {
		var row []keyboard.InlineBtn
		for _, b := range r.Buttons {
			row = append(row, keyboard.InlineBtn{Text: b.Text, Unique: b.Key, Data: b.Data})
		}
		s.send(ctx, chatID, r.Text, row)
	}
}

// execute submits the confirmed draft. The wallet answer is awaited in the
// background; the chat immediately gets a button that opens the wallet.
func (s *Service) execute(ctx context.Context, chatID int64, d flow.Draft) {
	conn := s.connector(chatID)
	s.restore(ctx, chatID, conn)
	w := conn.Wallet()
	if !conn.Connected() || w == nil {
		s.send(ctx, chatID, msgNotConnected)
		s.metrics.IncTransaction("not_connected")
		logger.Info(ctx, "flow", "tx.skip", slog.String("reason", "not_connected"))
		return
	}

	timeout := s.txTimeout
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	tx := tonconnect.Transaction{
		ValidUntil: s.now().Add(timeout).Unix(),
		Messages: []tonconnect.Message{{
			Address: d.WithdrawalAddress,
			Amount:  d.WithdrawalAmount,
		}},
	}
	go s.submit(context.WithoutCancel(ctx), chatID, conn, tx, timeout)

	s.sendOpenWallet(ctx, chatID, w)
}

// submit races the wallet's answer against timeout. Losing the race does not
// cancel the request; it stays bounded by twice the timeout on its own.
func (s *Service) submit(ctx context.Context, chatID int64, conn tonconnect.Connector, tx tonconnect.Transaction, timeout time.Duration) {
	defer conn.PauseConnection()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, 2*timeout)
		defer cancel()
		_, err := conn.SendTransaction(reqCtx, tx)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var (
		result string
		err    error
	)
	select {
	case err = <-done:
		result = txResult(err)
	case <-timer.C:
		result = "timeout"
	}

	text := msgTxUnknown
	switch result {
	case "sent":
		text = msgTxSent
	case "timeout":
		text = msgTxNotConfirmed
	case "rejected":
		text = msgTxRejected
	}
	s.send(ctx, chatID, text)
	s.metrics.IncTransaction(result)

	attrs := []slog.Attr{
		slog.String("result", result),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, logger.ErrAttr(err))
	}
	logger.Info(ctx, "flow", "tx.done", attrs...)
}

func txResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, tonconnect.ErrUserRejected):
		return "rejected"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "failed"
}

// sendOpenWallet sends "Open <wallet>" with a deep link to the wallet app
// when its universal link is known.
func (s *Service) sendOpenWallet(ctx context.Context, chatID int64, w *tonconnect.Wallet) {
	name, link := w.Device.AppName, ""
	if s.wallets != nil {
		if info, ok := s.wallets.WalletInfo(ctx, w.Device.AppName); ok {
			if info.Name != "" {
				name = info.Name
			}
			link = tonconnect.WalletDeepLink(info.UniversalLink, s.botLink)
		}
	}
	var row []keyboard.InlineBtn
	if link != "" {
		row = append(row, keyboard.InlineBtn{Text: "Open " + name, URL: link})
	}
	s.send(ctx, chatID, fmt.Sprintf(msgOpenWallet, name), row)
}

// expire ends the chat's conversation if its deadline has passed.
func (s *Service) expire(ctx context.Context, sess *session.ChatSession) bool {
	sess.Lock()
	defer sess.Unlock()
	st, id, ok := sess.Flow()
	if !ok || !st.Expired(s.now()) {
		return false
	}
	ctx = logger.WithFlowID(logger.WithChat(ctx, sess.ChatID), id)
	res := s.machine.Step(st, flow.Expire{})
	sess.SetFlow(res.State, id)
	s.metrics.IncFlowEvent(string(st.Step), "expired")
	logger.Info(ctx, "flow", "flow.expired", slog.String("step", string(st.Step)))
	s.reply(ctx, sess.ChatID, res.Replies)
	return true
}
