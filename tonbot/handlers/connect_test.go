package handlers

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestConnectShowsQRWithWalletButtons(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	if err := env.svc.Connect(ctx, testChat); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	photos := env.msgr.photos()
	if len(photos) != 1 {
		t.Fatalf("photos = %d, want 1", len(photos))
	}
	kb := photos[0].kb
	// three wallets with links fit into two rows, then "Open Link"
	if len(kb) != 3 {
		t.Fatalf("keyboard rows = %d, want 3: %+v", len(kb), kb)
	}
	if len(kb[0]) != 2 || len(kb[1]) != 1 {
		t.Fatalf("wallet rows = %d/%d, want 2/1", len(kb[0]), len(kb[1]))
	}
	if kb[0][0].Text != "Wallet" || !strings.HasPrefix(kb[0][0].URL, "https://t.me/wallet") {
		t.Errorf("first button = %+v", kb[0][0])
	}
	if kb[2][0].Text != "Open Link" || kb[2][0].URL == "" {
		t.Errorf("last row = %+v, want Open Link", kb[2])
	}
	if !env.reg.HasPending(testChat) {
		t.Errorf("pending connect not registered")
	}
}

func TestConnectWhenAlreadyConnected(t *testing.T) {
	env := newTestEnv(t, 0)
	env.conn.connect("tonkeeper")

	if err := env.svc.Connect(context.Background(), testChat); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if len(env.msgr.photos()) != 0 {
		t.Fatalf("QR shown for a connected wallet")
	}
	got := env.msgr.last().text
	if !strings.HasPrefix(got, "You have already connect Tonkeeper wallet\nYour address: ") {
		t.Errorf("reply = %q", got)
	}
	if env.reg.HasPending(testChat) {
		t.Errorf("pending connect registered for a connected wallet")
	}
}

func TestConnectTwiceKeepsOneQR(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	if err := env.svc.Connect(ctx, testChat); err != nil {
		t.Fatalf("first Connect() error: %v", err)
	}
	if err := env.svc.Connect(ctx, testChat); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}
	photos := env.msgr.photos()
	if len(photos) != 2 {
		t.Fatalf("photos = %d, want 2", len(photos))
	}
	deleted := env.msgr.deletedIDs()
	if len(deleted) != 1 || deleted[0] != photos[0].id {
		t.Fatalf("deleted = %v, want only first QR %d", deleted, photos[0].id)
	}
	if n := env.conn.subscribers(); n != 1 {
		t.Errorf("subscribers = %d, want 1", n)
	}
}

func TestConnectAnnouncesWallet(t *testing.T) {
	env := newTestEnv(t, 0)
	if err := env.svc.Connect(context.Background(), testChat); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	qr := env.msgr.photos()[0]

	env.conn.emit("tonkeeper")
	env.msgr.waitText(t, "Tonkeeper wallet connected successfully")

	if deleted := env.msgr.deletedIDs(); len(deleted) != 1 || deleted[0] != qr.id {
		t.Errorf("deleted = %v, want QR %d", deleted, qr.id)
	}
	if env.reg.HasPending(testChat) {
		t.Errorf("pending connect left after success")
	}
	if n := env.conn.subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}

	// a late duplicate event is ignored
	env.conn.emit("tonkeeper")
	count := 0
	for _, txt := range env.msgr.texts() {
		if txt == "Tonkeeper wallet connected successfully" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("announcements = %d, want 1", count)
	}
}

func TestEvictionCancelsPendingConnect(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if err := env.svc.Connect(ctx, testChat); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	qr := env.msgr.photos()[0]

	if !env.reg.Remove(testChat) {
		t.Fatalf("Remove() found no session")
	}
	if deleted := env.msgr.deletedIDs(); len(deleted) != 1 || deleted[0] != qr.id {
		t.Fatalf("deleted = %v, want QR %d once", deleted, qr.id)
	}
	if n := env.conn.subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
	env.conn.waitPaused(t)
	if env.reg.HasPending(testChat) {
		t.Errorf("pending connect survived eviction")
	}

	// a wallet event after eviction is not announced
	env.conn.emit("tonkeeper")
	for _, txt := range env.msgr.texts() {
		if txt == "Tonkeeper wallet connected successfully" {
			t.Fatalf("evicted request announced the wallet")
		}
	}
}

func TestConnectFailureTellsChat(t *testing.T) {
	env := newTestEnv(t, 0)
	env.conn.connectErr = errors.New("bridge unreachable")

	if err := env.svc.Connect(context.Background(), testChat); err != nil {
		t.Fatalf("Connect() = %v, want the failure reported in chat", err)
	}
	if len(env.msgr.photos()) != 0 {
		t.Fatalf("QR shown after a failed connect request")
	}
	if got := env.msgr.last().text; got != msgConnectFailed {
		t.Fatalf("reply = %q, want %q", got, msgConnectFailed)
	}
	if env.reg.HasPending(testChat) {
		t.Errorf("pending connect left after failure")
	}
	if n := env.conn.subscribers(); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestTransientMessageDeletesOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("delete before id", func(t *testing.T) {
		msgr := newFakeMessenger()
		var m transientMessage
		m.delete(ctx, msgr, testChat)
		if len(msgr.deletedIDs()) != 0 {
			t.Fatalf("deleted without an id")
		}
		m.setID(ctx, msgr, testChat, 42)
		if got := msgr.deletedIDs(); len(got) != 1 || got[0] != 42 {
			t.Fatalf("deleted = %v, want [42]", got)
		}
	})

	t.Run("delete twice", func(t *testing.T) {
		msgr := newFakeMessenger()
		var m transientMessage
		m.setID(ctx, msgr, testChat, 7)
		m.delete(ctx, msgr, testChat)
		m.delete(ctx, msgr, testChat)
		if got := msgr.deletedIDs(); len(got) != 1 {
			t.Fatalf("deleted = %v, want one delete", got)
		}
	})
}
