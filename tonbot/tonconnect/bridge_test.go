package tonconnect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBridge is an in-memory TON Connect bridge that keeps every message per
// client so subscribers can resume with last_event_id.
type fakeBridge struct {
	t      *testing.T
	wallet *SessionKeys

	mu      sync.Mutex
	history map[string][]string
	wake    chan struct{}
	topics  []string
	reply   func(req rpcRequest) string
}

func newFakeBridge(t *testing.T) (*fakeBridge, *httptest.Server) {
	t.Helper()
	wallet, err := NewSessionKeys()
	if err != nil {
		t.Fatalf("wallet keys: %v", err)
	}
	fb := &fakeBridge{t: t, wallet: wallet, history: map[string][]string{}, wake: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", fb.serveEvents)
	mux.HandleFunc("/message", fb.serveMessage)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
	})
	return fb, srv
}

func (fb *fakeBridge) serveEvents(w http.ResponseWriter, r *http.Request) {
	client := r.URL.Query().Get("client_id")
	last, _ := strconv.Atoi(r.URL.Query().Get("last_event_id"))
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, ok := w.(http.Flusher)
	if !ok {
		fb.t.Error("server doesn't support flushing")
		return
	}
	fmt.Fprint(w, "event: heartbeat\ndata: heartbeat\n\n")
	flusher.Flush()
	for {
		fb.mu.Lock()
		hist := fb.history[client]
		wake := fb.wake
		fb.mu.Unlock()
		for last < len(hist) {
			last++
			fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", last, hist[last-1])
		}
		flusher.Flush()
		select {
		case <-r.Context().Done():
			return
		case <-wake:
		}
	}
}

func (fb *fakeBridge) serveMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw, _ := io.ReadAll(r.Body)
	sealed, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	from, err := parseKey(q.Get("client_id"))
	if err != nil || q.Get("to") != fb.wallet.ID() {
		http.Error(w, "bad route", http.StatusBadRequest)
		return
	}
	body, err := fb.wallet.Open(sealed, from)
	if err != nil {
		http.Error(w, "cannot open", http.StatusBadRequest)
		return
	}
	var req rpcRequest
	_ = json.Unmarshal(body, &req)

	fb.mu.Lock()
	fb.topics = append(fb.topics, q.Get("topic"))
	reply := fb.reply
	fb.mu.Unlock()
	if reply != nil {
		if resp := reply(req); resp != "" {
			fb.fromWallet(q.Get("client_id"), resp)
		}
	}
	_, _ = w.Write([]byte(`{"message":"OK","statusCode":200}`))
}

// fromWallet encrypts payload with the wallet key and queues it for client.
func (fb *fakeBridge) fromWallet(clientID, payload string) {
	peer, err := parseKey(clientID)
	if err != nil {
		fb.t.Errorf("client id: %v", err)
		return
	}
	sealed, err := fb.wallet.Seal([]byte(payload), peer)
	if err != nil {
		fb.t.Errorf("seal: %v", err)
		return
	}
	env, _ := json.Marshal(bridgeMessage{From: fb.wallet.ID(), Message: base64.StdEncoding.EncodeToString(sealed)})
	fb.mu.Lock()
	fb.history[clientID] = append(fb.history[clientID], string(env))
	close(fb.wake)
	fb.wake = make(chan struct{})
	fb.mu.Unlock()
}

func (fb *fakeBridge) setReply(fn func(req rpcRequest) string) {
	fb.mu.Lock()
	fb.reply = fn
	fb.mu.Unlock()
}

func jsonUnmarshal(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}

func TestBridgeListenBacksOffOnEmptyStreams(t *testing.T) {
	var opens atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		opens.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: heartbeat\ndata: heartbeat\n\n")
	}))
	t.Cleanup(srv.Close)

	keys, err := NewSessionKeys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	b := newBridgeClient(srv.Client(), srv.Client(), srv.URL)
	b.minBackoff = 40 * time.Millisecond
	b.maxBackoff = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	b.listen(ctx, keys, "", func(inbound) { t.Error("unexpected message") })

	// 0, 40, 120, 280ms: four opens at most with a doubling backoff.
	if n := opens.Load(); n < 2 || n > 4 {
		t.Fatalf("stream opened %d times in 300ms, want 2..4", n)
	}
}
