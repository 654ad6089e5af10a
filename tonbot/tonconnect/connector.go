package tonconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/tonbot/core/logger"
)

const (
	sessionKey     = "connection"
	storageTimeout = 5 * time.Second
)

// Connector is the wallet side of one chat.
type Connector interface {
	// RestoreConnection loads a persisted session and resumes listening.
	// A missing session is not an error; Connected reports false afterwards.
	RestoreConnection(ctx context.Context) error
	Connected() bool
	// Wallet returns a copy of the connected wallet, nil when disconnected.
	Wallet() *Wallet
	// Connect starts a new connect request on every bridge of wallets and
	// returns the universal tc:// link. The first wallet to answer wins.
	Connect(ctx context.Context, wallets []WalletInfo) (string, error)
	// OnStatusChange registers fn for connect (wallet) and disconnect (nil)
	// events. The returned unsubscribe is idempotent.
	OnStatusChange(fn func(*Wallet)) (unsubscribe func())
	SendTransaction(ctx context.Context, tx Transaction) (SendTransactionResult, error)
	Disconnect(ctx context.Context) error
	// PauseConnection closes the bridge subscription but keeps the session.
	PauseConnection()
}

// BridgeOptions configures NewBridgeConnector.
type BridgeOptions struct {
	ManifestURL string
	Storage     Storage
	// HTTPClient sends bridge messages; StreamClient holds SSE subscriptions
	// and must not carry an overall timeout.
	HTTPClient   *http.Client
	StreamClient *http.Client
	Log          *slog.Logger
}

type storedSession struct {
	PrivateKey    string `json:"private_key"`
	WalletKey     string `json:"wallet_key"`
	BridgeURL     string `json:"bridge_url"`
	Wallet        Wallet `json:"wallet"`
	LastEventID   string `json:"last_event_id,omitempty"`
	NextRequestID uint64 `json:"next_request_id"`
}

type activeSession struct {
	keys      *SessionKeys
	walletKey [32]byte
	bridge    *bridgeClient
	stored    storedSession
}

type pendingConnect struct {
	keys   *SessionKeys
	cancel context.CancelFunc
}

type rpcRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     string   `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage
	Error  *WalletError
	err    error
}

// BridgeConnector implements Connector over the TON Connect HTTP bridge.
type BridgeConnector struct {
	opts BridgeOptions
	log  *slog.Logger

	mu         sync.Mutex
	session    *activeSession
	pending    *pendingConnect
	stopListen context.CancelFunc
	listenGen  uint64
	subs       map[uint64]func(*Wallet)
	nextSub    uint64
	inflight   map[string]chan rpcResponse
}

// NewBridgeConnector returns a disconnected connector. Call RestoreConnection
// to pick up a persisted session.
func NewBridgeConnector(opts BridgeOptions) *BridgeConnector {
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.StreamClient == nil {
		opts.StreamClient = http.DefaultClient
	}
	log := opts.Log
	if log == nil {
		log = logger.TON
	}
	return &BridgeConnector{
		opts:     opts,
		log:      log,
		subs:     make(map[uint64]func(*Wallet)),
		inflight: make(map[string]chan rpcResponse),
	}
}

func (c *BridgeConnector) RestoreConnection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.startListeningLocked()
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	raw, err := c.opts.Storage.Get(sctx, sessionKey)
	if err != nil {
		return fmt.Errorf("tonconnect: load session: %w", err)
	}
	if raw == "" {
		return nil
	}
	s, err := c.decodeSession(raw)
	if err != nil {
		c.log.Warn("stored session dropped",
			slog.String("event", "session.restore"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		_ = c.opts.Storage.Delete(sctx, sessionKey)
		return nil
	}
	c.session = s
	c.startListeningLocked()
	return nil
}

func (c *BridgeConnector) decodeSession(raw string) (*activeSession, error) {
	var st storedSession
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, err
	}
	keys, err := SessionKeysFromHex(st.PrivateKey)
	if err != nil {
		return nil, err
	}
	walletKey, err := parseKey(st.WalletKey)
	if err != nil {
		return nil, err
	}
	if st.BridgeURL == "" {
		return nil, errors.New("stored session has no bridge url")
	}
	return &activeSession{
		keys:      keys,
		walletKey: walletKey,
		bridge:    newBridgeClient(c.opts.HTTPClient, c.opts.StreamClient, st.BridgeURL),
		stored:    st,
	}, nil
}

func (c *BridgeConnector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *BridgeConnector) Wallet() *Wallet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	w := c.session.stored.Wallet
	return &w
}

func (c *BridgeConnector) Connect(_ context.Context, wallets []WalletInfo) (string, error) {
	seen := make(map[string]struct{}, len(wallets))
	var bridges []string
	for _, w := range wallets {
		b := strings.TrimRight(strings.TrimSpace(w.BridgeURL), "/")
		if b == "" {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		bridges = append(bridges, b)
	}
	if len(bridges) == 0 {
		return "", ErrNoBridge
	}

	keys, err := NewSessionKeys()
	if err != nil {
		return "", err
	}
	link, err := connectLink(universalScheme, keys.ID(), ConnectRequest{
		ManifestURL: c.opts.ManifestURL,
		Items:       []ConnectItem{{Name: "ton_addr"}},
	})
	if err != nil {
		return "", err
	}

	lctx, cancel := context.WithCancel(context.Background())
	p := &pendingConnect{keys: keys, cancel: cancel}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		cancel()
		return "", ErrAlreadyConnected
	}
	if c.pending != nil {
		c.pending.cancel()
	}
	c.pending = p
	c.mu.Unlock()

	for _, b := range bridges {
		bc := newBridgeClient(c.opts.HTTPClient, c.opts.StreamClient, b)
		go bc.listen(lctx, keys, "", func(in inbound) { c.handleConnectEvent(p, bc, in) })
	}
	c.log.Debug("connect request opened",
		slog.String("event", "connect.request"),
		slog.Int("count", len(bridges)),
	)
	return link, nil
}

type walletEvent struct {
	Event   string          `json:"event"`
	ID      json.RawMessage `json:"id"`
	Payload json.RawMessage `json:"payload"`
	Result  json.RawMessage `json:"result"`
	Error   *WalletError    `json:"error"`
}

type connectPayload struct {
	Items []struct {
		Name string `json:"name"`
		Account
	} `json:"items"`
	Device Device `json:"device"`
}

func (c *BridgeConnector) handleConnectEvent(p *pendingConnect, bc *bridgeClient, in inbound) {
	var ev walletEvent
	if err := json.Unmarshal(in.Body, &ev); err != nil {
		c.log.Debug("connect event skipped", slog.String("event", "connect.decode"), slog.String("err", err.Error()))
		return
	}
	switch ev.Event {
	case "connect":
		var payload connectPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			c.log.Warn("connect payload invalid", slog.String("event", "connect.decode"), slog.String("err", err.Error()))
			return
		}
		var account Account
		for _, item := range payload.Items {
			if item.Name == "ton_addr" {
				account = item.Account
			}
		}
		walletKey, err := parseKey(in.From)
		if err != nil || account.Address == "" {
			c.log.Warn("connect event incomplete", slog.String("event", "connect.decode"), slog.String("bridge", bc.base))
			return
		}

		c.mu.Lock()
		if c.pending != p {
			c.mu.Unlock()
			return
		}
		c.pending = nil
		p.cancel()
		c.stopListeningLocked()
		c.session = &activeSession{
			keys:      p.keys,
			walletKey: walletKey,
			bridge:    bc,
			stored: storedSession{
				PrivateKey:  p.keys.PrivateHex(),
				WalletKey:   in.From,
				BridgeURL:   bc.base,
				Wallet:      Wallet{Device: payload.Device, Account: account},
				LastEventID: in.EventID,
			},
		}
		c.persistLocked()
		c.startListeningLocked()
		w := c.session.stored.Wallet
		subs := c.subscribersLocked()
		c.mu.Unlock()

		c.log.Info("wallet connected",
			slog.String("event", "connect.established"),
			slog.String("wallet", w.Device.AppName),
			slog.String("network", w.Account.Chain),
			slog.String("bridge", bc.base),
		)
		notify(subs, &w)

	case "connect_error":
		var werr WalletError
		_ = json.Unmarshal(ev.Payload, &werr)
		c.mu.Lock()
		if c.pending == p {
			c.pending = nil
			p.cancel()
		}
		c.mu.Unlock()
		c.log.Warn("connect rejected",
			slog.String("event", "connect.error"),
			slog.Int("err_code", werr.Code),
			slog.String("err", werr.Message),
		)
	}
}

func (c *BridgeConnector) handleWalletMessage(gen uint64, in inbound) {
	c.mu.Lock()
	s := c.session
	if s == nil || gen != c.listenGen || in.From != fmt.Sprintf("%x", s.walletKey[:]) {
		c.mu.Unlock()
		return
	}
	if in.EventID != "" {
		s.stored.LastEventID = in.EventID
	}

	var ev walletEvent
	if err := json.Unmarshal(in.Body, &ev); err != nil {
		c.persistLocked()
		c.mu.Unlock()
		c.log.Debug("wallet message skipped", slog.String("event", "bridge.decode"), slog.String("err", err.Error()))
		return
	}

	if ev.Event == "disconnect" {
		c.dropSessionLocked()
		subs := c.subscribersLocked()
		c.mu.Unlock()
		c.log.Info("wallet disconnected", slog.String("event", "disconnect.remote"))
		notify(subs, nil)
		return
	}
	c.persistLocked()
	if ev.Event != "" {
		c.mu.Unlock()
		return
	}
	id := strings.Trim(string(ev.ID), `"`)
	ch := c.inflight[id]
	delete(c.inflight, id)
	c.mu.Unlock()

	if ch != nil {
		ch <- rpcResponse{Result: ev.Result, Error: ev.Error}
	}
}

func (c *BridgeConnector) OnStatusChange(fn func(*Wallet)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *BridgeConnector) SendTransaction(ctx context.Context, tx Transaction) (SendTransactionResult, error) {
	params, err := json.Marshal(tx)
	if err != nil {
		return SendTransactionResult{}, fmt.Errorf("tonconnect: encode transaction: %w", err)
	}

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return SendTransactionResult{}, ErrNotConnected
	}
	c.startListeningLocked()
	s.stored.NextRequestID++
	id := strconv.FormatUint(s.stored.NextRequestID, 10)
	ch := make(chan rpcResponse, 1)
	c.inflight[id] = ch
	c.persistLocked()
	keys, peer, bridge := s.keys, s.walletKey, s.bridge
	c.mu.Unlock()

	body, _ := json.Marshal(rpcRequest{Method: "sendTransaction", Params: []string{string(params)}, ID: id})
	if err := bridge.send(ctx, keys, peer, "sendTransaction", body); err != nil {
		c.forget(id)
		return SendTransactionResult{}, err
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return SendTransactionResult{}, resp.err
		}
		if resp.Error != nil {
			return SendTransactionResult{}, resp.Error
		}
		var boc string
		if err := json.Unmarshal(resp.Result, &boc); err != nil {
			boc = string(resp.Result)
		}
		return SendTransactionResult{BOC: boc}, nil
	case <-ctx.Done():
		c.forget(id)
		return SendTransactionResult{}, ctx.Err()
	}
}

func (c *BridgeConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	s.stored.NextRequestID++
	id := strconv.FormatUint(s.stored.NextRequestID, 10)
	c.dropSessionLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	body, _ := json.Marshal(rpcRequest{Method: "disconnect", Params: []string{}, ID: id})
	if err := s.bridge.send(ctx, s.keys, s.walletKey, "disconnect", body); err != nil {
		c.log.Warn("disconnect notice not delivered",
			slog.String("event", "disconnect.send"),
			slog.String("bridge", s.bridge.base),
			slog.String("err", err.Error()),
		)
	}
	notify(subs, nil)
	return nil
}

func (c *BridgeConnector) PauseConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopListeningLocked()
}

// Close stops every background subscription, including a pending connect.
func (c *BridgeConnector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.cancel()
		c.pending = nil
	}
	c.stopListeningLocked()
}

func (c *BridgeConnector) startListeningLocked() {
	if c.stopListen != nil || c.session == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stopListen = cancel
	c.listenGen++
	gen, s := c.listenGen, c.session
	go s.bridge.listen(ctx, s.keys, s.stored.LastEventID, func(in inbound) { c.handleWalletMessage(gen, in) })
}

func (c *BridgeConnector) stopListeningLocked() {
	if c.stopListen != nil {
		c.stopListen()
		c.stopListen = nil
	}
}

// dropSessionLocked forgets the session everywhere and fails waiting requests.
func (c *BridgeConnector) dropSessionLocked() {
	c.stopListeningLocked()
	c.session = nil
	for id, ch := range c.inflight {
		ch <- rpcResponse{err: ErrNotConnected}
		delete(c.inflight, id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := c.opts.Storage.Delete(ctx, sessionKey); err != nil {
		c.log.Warn("stored session not deleted", slog.String("event", "session.delete"), slog.String("err", err.Error()))
	}
}

func (c *BridgeConnector) persistLocked() {
	if c.session == nil {
		return
	}
	raw, err := json.Marshal(c.session.stored)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := c.opts.Storage.Set(ctx, sessionKey, string(raw)); err != nil {
		c.log.Warn("session not persisted", slog.String("event", "session.save"), slog.String("err", err.Error()))
	}
}

func (c *BridgeConnector) forget(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

func (c *BridgeConnector) subscribersLocked() []func(*Wallet) {
	out := make([]func(*Wallet), 0, len(c.subs))
	for id := uint64(0); id < c.nextSub; id++ {
		if fn, ok := c.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(*Wallet), w *Wallet) {
	for _, fn := range subs {
		fn(w)
	}
}
