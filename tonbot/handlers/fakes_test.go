package handlers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/tonbot/core/telegram/keyboard"
	"github.com/m3rciful/tonbot/core/telegram/state"
	"github.com/m3rciful/tonbot/tonbot/address"
	"github.com/m3rciful/tonbot/tonbot/flow"
	"github.com/m3rciful/tonbot/tonbot/session"
	"github.com/m3rciful/tonbot/tonbot/tonconnect"
)

const (
	testChat    int64 = 100
	zeroAddress       = "EQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAM9c"
	rawWallet         = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"
)

var validAddress = "EQ" + strings.Repeat("B", 46)

type sentMessage struct {
	chatID int64
	id     int
	text   string
	kb     [][]keyboard.InlineBtn
	photo  bool
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []sentMessage
	deleted []int
	notify  chan sentMessage
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 10, notify: make(chan sentMessage, 128)}
}

func (m *fakeMessenger) record(msg sentMessage) int {
	m.mu.Lock()
	m.nextID++
	msg.id = m.nextID
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.notify <- msg
	return msg.id
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string, kb [][]keyboard.InlineBtn) (int, error) {
	return m.record(sentMessage{chatID: chatID, text: text, kb: kb}), nil
}

func (m *fakeMessenger) SendPhoto(_ context.Context, chatID int64, png []byte, caption string, kb [][]keyboard.InlineBtn) (int, error) {
	if len(png) == 0 {
		panic("empty qr image")
	}
	return m.record(sentMessage{chatID: chatID, text: caption, kb: kb, photo: true}), nil
}

func (m *fakeMessenger) Delete(_ context.Context, _ int64, msgID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, msgID)
	return nil
}

func (m *fakeMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.text)
	}
	return out
}

func (m *fakeMessenger) photos() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.photo {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMessenger) deletedIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.deleted...)
}

func (m *fakeMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

// waitText blocks until a message with exactly text is sent.
func (m *fakeMessenger) waitText(t *testing.T, text string) sentMessage {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-m.notify:
			if msg.text == text {
				return msg
			}
		case <-timeout:
			t.Fatalf("message %q not sent; got %q", text, m.texts())
			return sentMessage{}
		}
	}
}

type fakeConnector struct {
	mu           sync.Mutex
	connected    bool
	wallet       *tonconnect.Wallet
	subs         map[int]func(*tonconnect.Wallet)
	nextSub      int
	unsubscribed int
	link         string
	connectErr   error
	sendFn       func(ctx context.Context, tx tonconnect.Transaction) (tonconnect.SendTransactionResult, error)
	sent         []tonconnect.Transaction
	disconnects  int
	paused       chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		subs:   make(map[int]func(*tonconnect.Wallet)),
		link:   "tc://?v=2&id=abc&r=%7B%7D&ret=none",
		paused: make(chan struct{}, 16),
	}
}

func (f *fakeConnector) connect(appName string) {
	f.mu.Lock()
	f.connected = true
	f.wallet = &tonconnect.Wallet{
		Device:  tonconnect.Device{AppName: appName},
		Account: tonconnect.Account{Address: rawWallet, Chain: tonconnect.ChainMainnet},
	}
	f.mu.Unlock()
}

func (f *fakeConnector) RestoreConnection(context.Context) error { return nil }

func (f *fakeConnector) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConnector) Wallet() *tonconnect.Wallet {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wallet == nil {
		return nil
	}
	w := *f.wallet
	return &w
}

func (f *fakeConnector) Connect(context.Context, []tonconnect.WalletInfo) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return "", f.connectErr
	}
	return f.link, nil
}

func (f *fakeConnector) OnStatusChange(fn func(*tonconnect.Wallet)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.unsubscribed++
			f.mu.Unlock()
		})
	}
}

// emit connects the wallet and notifies current subscribers.
func (f *fakeConnector) emit(appName string) {
	f.connect(appName)
	f.mu.Lock()
	subs := make([]func(*tonconnect.Wallet), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	w := *f.wallet
	f.mu.Unlock()
	for _, fn := range subs {
		fn(&w)
	}
}

func (f *fakeConnector) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeConnector) SendTransaction(ctx context.Context, tx tonconnect.Transaction) (tonconnect.SendTransactionResult, error) {
	f.mu.Lock()
	f.sent = append(f.sent, tx)
	fn := f.sendFn
	f.mu.Unlock()
	if fn == nil {
		return tonconnect.SendTransactionResult{BOC: "te6cc"}, nil
	}
	return fn(ctx, tx)
}

func (f *fakeConnector) transactions() []tonconnect.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tonconnect.Transaction(nil), f.sent...)
}

func (f *fakeConnector) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
	f.wallet = nil
	return nil
}

func (f *fakeConnector) PauseConnection() { f.paused <- struct{}{} }

func (f *fakeConnector) waitPaused(t *testing.T) {
	t.Helper()
	select {
	case <-f.paused:
	case <-time.After(2 * time.Second):
		t.Fatal("PauseConnection was not called")
	}
}

type fakeDirectory struct {
	wallets []tonconnect.WalletInfo
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{wallets: []tonconnect.WalletInfo{
		{AppName: "telegram-wallet", Name: "Wallet", UniversalLink: "https://t.me/wallet?attach=wallet"},
		{AppName: "tonkeeper", Name: "Tonkeeper", UniversalLink: "https://app.tonkeeper.com/ton-connect"},
		{AppName: "mytonwallet", Name: "MyTonWallet", UniversalLink: "https://connect.mytonwallet.org"},
		{AppName: "nolink", Name: "No Link"},
	}}
}

func (d *fakeDirectory) Wallets(context.Context) ([]tonconnect.WalletInfo, error) {
	return d.wallets, nil
}

func (d *fakeDirectory) WalletInfo(_ context.Context, appName string) (tonconnect.WalletInfo, bool) {
	for _, w := range d.wallets {
		if strings.EqualFold(w.AppName, appName) {
			return w, true
		}
	}
	return tonconnect.WalletInfo{}, false
}

type testEnv struct {
	svc   *Service
	reg   *session.Registry
	store *state.Store[*session.ChatSession]
	msgr  *fakeMessenger
	conn  *fakeConnector
	clock *time.Time
}

func newTestEnv(t *testing.T, txTimeout time.Duration) *testEnv {
	t.Helper()
	clock := time.Unix(1_700_000_000, 0)
	env := &testEnv{msgr: newFakeMessenger(), conn: newFakeConnector(), clock: &clock}
	now := func() time.Time { return *env.clock }

	env.store = state.NewStore[*session.ChatSession]()
	env.store.SetClock(now)
	env.reg = session.NewRegistry(env.store, func(int64) tonconnect.Connector { return env.conn })
	env.svc = New(Options{
		Registry:  env.reg,
		Messenger: env.msgr,
		Wallets:   newFakeDirectory(),
		Machine: flow.Machine{
			Rules:       address.Rules{Length: 48, Prefixes: []string{"EQ", "Ef", "UQ"}},
			ZeroAddress: zeroAddress,
			TTL:         10 * time.Minute,
		},
		TxTimeout:  txTimeout,
		BotLink:    "https://t.me/test_bot",
		SessionTTL: time.Hour,
		Now:        now,
	})
	env.svc.newID = func() string { return "flow-1" }
	return env
}
