package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/tonbot/tonbot/flow"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

// walkToConfirm drives a native transfer up to the confirmation step.
func walkToConfirm(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	if err := env.svc.SendTx(ctx, testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	steps := []func() (bool, error){
		func() (bool, error) { return env.svc.HandleCallback(ctx, testChat, flow.CallbackAsset, "native") },
		func() (bool, error) { return env.svc.HandleText(ctx, testChat, validAddress) },
		func() (bool, error) { return env.svc.HandleText(ctx, testChat, "1000") },
	}
	for i, step := range steps {
		handled, err := step()
		if err != nil || !handled {
			t.Fatalf("step %d: handled=%v err=%v", i, handled, err)
		}
	}
}

func TestSendTxStartsConversation(t *testing.T) {
	env := newTestEnv(t, 0)
	if err := env.svc.SendTx(context.Background(), testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	last := env.msgr.last()
	if last.text != `Do you want to send "Native" or "Jetton"?` {
		t.Fatalf("reply = %q", last.text)
	}
	if len(last.kb) != 1 || len(last.kb[0]) != 2 {
		t.Fatalf("keyboard = %+v, want one row of two", last.kb)
	}
	if last.kb[0][1].Unique != flow.CallbackAsset || last.kb[0][1].Data != "jetton" {
		t.Errorf("jetton button = %+v", last.kb[0][1])
	}
	if !env.svc.InProgress(testChat) {
		t.Errorf("InProgress() = false after start")
	}
}

func TestSendTxNativeSuccess(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.conn.connect("telegram-wallet")
	walkToConfirm(t, env)

	summary := env.msgr.last()
	if !strings.Contains(summary.text, "Contract Address: "+zeroAddress) {
		t.Fatalf("summary = %q", summary.text)
	}

	handled, err := env.svc.HandleCallback(context.Background(), testChat, flow.CallbackConfirm, "true")
	if err != nil || !handled {
		t.Fatalf("confirm: handled=%v err=%v", handled, err)
	}
	open := env.msgr.waitText(t, "Open Wallet and confirm transaction")
	if len(open.kb) != 1 || open.kb[0][0].URL == "" {
		t.Errorf("open wallet keyboard = %+v", open.kb)
	}
	env.msgr.waitText(t, msgTxSent)
	env.conn.waitPaused(t)

	txs := env.conn.transactions()
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
	msg := txs[0].Messages[0]
	if msg.Address != validAddress || msg.Amount != "1000" {
		t.Errorf("message = %+v", msg)
	}
	if env.svc.InProgress(testChat) {
		t.Errorf("conversation still active after submit")
	}
}

func TestSendTxTimeoutLeavesSubmissionRunning(t *testing.T) {
	env := newTestEnv(t, 100*time.Millisecond)
	env.conn.connect("tonkeeper")
	started := make(chan context.Context, 1)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	env.conn.sendFn = func(ctx context.Context, _ tonconnect.Transaction) (tonconnect.SendTransactionResult, error) {
		started <- ctx
		select {
		case <-release:
			return tonconnect.SendTransactionResult{}, nil
		case <-ctx.Done():
			return tonconnect.SendTransactionResult{}, ctx.Err()
		}
	}
	walkToConfirm(t, env)

	if _, err := env.svc.HandleCallback(context.Background(), testChat, flow.CallbackConfirm, "true"); err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	env.msgr.waitText(t, msgTxNotConfirmed)
	env.conn.waitPaused(t)

	var reqCtx context.Context
	select {
	case reqCtx = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("SendTransaction was not called")
	}
	if err := reqCtx.Err(); err != nil {
		t.Fatalf("submission cancelled after the timeout reply: %v", err)
	}
	deadline, ok := reqCtx.Deadline()
	if !ok || time.Until(deadline) > 200*time.Millisecond {
		t.Fatalf("submission deadline = %v (set %v), want about twice the timeout", deadline, ok)
	}
}

func TestSendTxRejected(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.conn.connect("tonkeeper")
	env.conn.sendFn = func(context.Context, tonconnect.Transaction) (tonconnect.SendTransactionResult, error) {
		return tonconnect.SendTransactionResult{}, &tonconnect.WalletError{Code: tonconnect.CodeUserRejected, Message: "user declined"}
	}
	walkToConfirm(t, env)

	if _, err := env.svc.HandleCallback(context.Background(), testChat, flow.CallbackConfirm, "true"); err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	env.msgr.waitText(t, msgTxRejected)
}

func TestSendTxFailure(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.conn.connect("tonkeeper")
	env.conn.sendFn = func(context.Context, tonconnect.Transaction) (tonconnect.SendTransactionResult, error) {
		return tonconnect.SendTransactionResult{}, errors.New("bridge down")
	}
	walkToConfirm(t, env)

	if _, err := env.svc.HandleCallback(context.Background(), testChat, flow.CallbackConfirm, "true"); err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	env.msgr.waitText(t, msgTxUnknown)
}

func TestSendTxNotConnected(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	walkToConfirm(t, env)

	if _, err := env.svc.HandleCallback(context.Background(), testChat, flow.CallbackConfirm, "true"); err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	if got := env.msgr.last().text; got != msgNotConnected {
		t.Fatalf("reply = %q, want %q", got, msgNotConnected)
	}
	if len(env.conn.transactions()) != 0 {
		t.Errorf("transaction submitted without a wallet")
	}
}

func TestSendTxCancel(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	env.conn.connect("tonkeeper")
	walkToConfirm(t, env)

	if _, err := env.svc.HandleCallback(context.Background(), testChat, flow.CallbackConfirm, "false"); err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if got := env.msgr.last().text; got != "cancel transaction" {
		t.Fatalf("reply = %q", got)
	}
	if env.svc.InProgress(testChat) {
		t.Errorf("conversation still active after cancel")
	}
	if len(env.conn.transactions()) != 0 {
		t.Errorf("transaction submitted after cancel")
	}
}

func TestSendTxJettonBadContractHalts(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	ctx := context.Background()
	if err := env.svc.SendTx(ctx, testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	if _, err := env.svc.HandleCallback(ctx, testChat, flow.CallbackAsset, "jetton"); err != nil {
		t.Fatalf("asset error: %v", err)
	}
	if got := env.msgr.last().text; got != "Please input contract address" {
		t.Fatalf("reply = %q", got)
	}
	handled, err := env.svc.HandleText(ctx, testChat, "hello")
	if err != nil || !handled {
		t.Fatalf("contract: handled=%v err=%v", handled, err)
	}
	if got := env.msgr.last().text; got != "Incorrect Address Type : Not a TON contract address : hello" {
		t.Fatalf("reply = %q", got)
	}
	if env.svc.InProgress(testChat) {
		t.Fatalf("conversation still active after invalid contract")
	}
	handled, _ = env.svc.HandleText(ctx, testChat, validAddress)
	if handled {
		t.Errorf("text consumed after the conversation halted")
	}
}

func TestSendTxIgnoresTextAtChoice(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	ctx := context.Background()
	if err := env.svc.SendTx(ctx, testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	handled, err := env.svc.HandleText(ctx, testChat, "native")
	if err != nil || handled {
		t.Fatalf("handled=%v err=%v, want ignored", handled, err)
	}
	if !env.svc.InProgress(testChat) {
		t.Errorf("ignored text ended the conversation")
	}
}

func TestSendTxExpiresOnLateInput(t *testing.T) {
	env := newTestEnv(t, time.Minute)
	ctx := context.Background()
	if err := env.svc.SendTx(ctx, testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	*env.clock = env.clock.Add(11 * time.Minute)

	handled, err := env.svc.HandleCallback(ctx, testChat, flow.CallbackAsset, "native")
	if err != nil || !handled {
		t.Fatalf("handled=%v err=%v", handled, err)
	}
	if got := env.msgr.last().text; !strings.HasPrefix(got, "Transaction was not completed in time") {
		t.Fatalf("reply = %q", got)
	}
	if env.svc.InProgress(testChat) {
		t.Errorf("conversation still active after expiry")
	}
}
