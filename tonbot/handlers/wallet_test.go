package handlers

import (
	"context"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestShowWallet(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	if err := env.svc.ShowWallet(ctx, testChat); err != nil {
		t.Fatalf("ShowWallet() error: %v", err)
	}
	if got := env.msgr.last().text; got != msgNoWallet {
		t.Fatalf("reply = %q, want %q", got, msgNoWallet)
	}

	env.conn.connect("tonkeeper")
	if err := env.svc.ShowWallet(ctx, testChat); err != nil {
		t.Fatalf("ShowWallet() error: %v", err)
	}
	got := env.msgr.last().text
	if !strings.HasPrefix(got, "Connected wallet: Tonkeeper\nYour address: ") {
		t.Fatalf("reply = %q", got)
	}
	if strings.Contains(got, rawWallet) {
		t.Errorf("address not converted to user-friendly form: %q", got)
	}
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	if err := env.svc.Disconnect(ctx, testChat); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if got := env.msgr.last().text; got != msgNoWallet {
		t.Fatalf("reply = %q, want %q", got, msgNoWallet)
	}

	env.conn.connect("tonkeeper")
	if err := env.svc.Disconnect(ctx, testChat); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if got := env.msgr.last().text; got != msgDisconnected {
		t.Fatalf("reply = %q, want %q", got, msgDisconnected)
	}
	if env.conn.disconnects != 1 || env.conn.Connected() {
		t.Errorf("disconnects = %d connected = %v", env.conn.disconnects, env.conn.Connected())
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if err := env.svc.SendTx(ctx, testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	if err := env.svc.Connect(ctx, testChat+1); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := env.svc.Stats(ctx, 1); err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	want := "Sessions: 2\nPending connects: 1\nActive transfers: 1"
	if got := env.msgr.last().text; got != want {
		t.Fatalf("stats = %q, want %q", got, want)
	}
}

func TestSweepExpiresAndEvicts(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	if err := env.svc.SendTx(ctx, testChat); err != nil {
		t.Fatalf("SendTx() error: %v", err)
	}
	if err := env.svc.Connect(ctx, testChat+1); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	if st := env.svc.Sweep(ctx); st.Expired != 0 || st.Evicted != 0 {
		t.Fatalf("fresh sweep = %+v, want nothing", st)
	}

	*env.clock = env.clock.Add(11 * time.Minute)
	st := env.svc.Sweep(ctx)
	if st.Expired != 1 || st.Evicted != 0 {
		t.Fatalf("sweep = %+v, want one expiry", st)
	}
	if got := env.msgr.last().text; !strings.HasPrefix(got, "Transaction was not completed in time") {
		t.Errorf("expiry reply = %q", got)
	}

	*env.clock = env.clock.Add(2 * time.Hour)
	st = env.svc.Sweep(ctx)
	if st.Evicted != 2 {
		t.Fatalf("sweep = %+v, want two evictions", st)
	}
	if env.reg.Len() != 0 {
		t.Errorf("sessions left = %d", env.reg.Len())
	}
	// the evicted chat's QR goes away with its pending connect
	if len(env.msgr.deletedIDs()) != 1 {
		t.Errorf("deleted = %v, want the pending QR", env.msgr.deletedIDs())
	}
}

func TestHelpTextEscapesMarkdown(t *testing.T) {
	got := HelpText([]tele.Command{
		{Text: "/connect", Description: "Connect a TON wallet"},
		{Text: "/send_tx", Description: "Send TON or a jetton"},
	})
	if !strings.Contains(got, `/send\_tx - Send TON or a jetton`) {
		t.Fatalf("help = %q", got)
	}
	if !strings.HasPrefix(got, "*TON wallet bot*") {
		t.Errorf("help header = %q", got)
	}
}
