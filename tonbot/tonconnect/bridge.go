package tonconnect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/tonbot/core/logger"
)

const (
	defaultMessageTTL = 300
	reconnectMin      = time.Second
	reconnectMax      = 30 * time.Second
)

// bridgeMessage is the SSE data envelope delivered by the bridge.
type bridgeMessage struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

type bridgeClient struct {
	post   *http.Client
	stream *http.Client
	base   string

	minBackoff time.Duration
	maxBackoff time.Duration
}

func newBridgeClient(post, stream *http.Client, base string) *bridgeClient {
	return &bridgeClient{
		post:       post,
		stream:     stream,
		base:       strings.TrimRight(base, "/"),
		minBackoff: reconnectMin,
		maxBackoff: reconnectMax,
	}
}

// send encrypts payload for peer and posts it to the bridge.
func (b *bridgeClient) send(ctx context.Context, keys *SessionKeys, peer [32]byte, topic string, payload []byte) error {
	sealed, err := keys.Seal(payload, peer)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("client_id", keys.ID())
	q.Set("to", fmt.Sprintf("%x", peer[:]))
	q.Set("ttl", strconv.Itoa(defaultMessageTTL))
	if topic != "" {
		q.Set("topic", topic)
	}
	endpoint := b.base + "/message?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(base64.StdEncoding.EncodeToString(sealed)))
	if err != nil {
		return fmt.Errorf("tonconnect: bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := b.post.Do(req)
	if err != nil {
		return fmt.Errorf("tonconnect: bridge post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

func (b *bridgeClient) eventsURL(clientID, lastEventID string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	if lastEventID != "" {
		q.Set("last_event_id", lastEventID)
	}
	return b.base + "/events?" + q.Encode()
}

// inbound is one decrypted bridge message.
type inbound struct {
	From    string
	Body    []byte
	EventID string
}

// listen keeps an SSE subscription open until ctx is done, reconnecting with
// backoff and resuming from the last seen event id. The backoff resets only
// after a stream delivered a message or stayed open past the maximum
// backoff; a bridge that keeps closing empty streams is not hammered.
// Messages that fail to decrypt are skipped.
func (b *bridgeClient) listen(ctx context.Context, keys *SessionKeys, lastEventID string, handle func(inbound)) {
	backoff := b.minBackoff
	for ctx.Err() == nil {
		opened := time.Now()
		events, err := openSSE(ctx, b.stream, b.eventsURL(keys.ID(), lastEventID))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.TON.Warn("bridge subscribe failed",
				slog.String("event", "bridge.subscribe"),
				slog.String("bridge", b.base),
				slog.String("err", err.Error()),
				slog.Duration("backoff", backoff),
			)
			if !b.pause(ctx, &backoff) {
				return
			}
			continue
		}
		if b.drain(keys, events, &lastEventID, handle) > 0 || time.Since(opened) >= b.maxBackoff {
			backoff = b.minBackoff
			continue
		}
		if ctx.Err() != nil {
			return
		}
		logger.TON.Debug("bridge stream closed early",
			slog.String("event", "bridge.closed"),
			slog.String("bridge", b.base),
			slog.Duration("backoff", backoff),
		)
		if !b.pause(ctx, &backoff) {
			return
		}
	}
}

// pause waits out backoff and doubles it for the next attempt.
func (b *bridgeClient) pause(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(*backoff):
	}
	*backoff = min(*backoff*2, b.maxBackoff)
	return true
}

// drain hands the stream's messages to handle until it closes and returns
// how many were delivered.
func (b *bridgeClient) drain(keys *SessionKeys, events <-chan sseEvent, lastEventID *string, handle func(inbound)) int {
	delivered := 0
	for ev := range events {
		if ev.ID != "" {
			*lastEventID = ev.ID
		}
		if ev.Type != "message" {
			if logger.ShouldSampleDebug("bridge.heartbeat") {
				logger.TON.Debug("bridge event skipped",
					slog.String("event", "bridge.heartbeat"),
					slog.String("bridge", b.base),
					slog.String("type", ev.Type),
				)
			}
			continue
		}
		msg, err := b.decode(keys, ev.Data)
		if err != nil {
			logger.TON.Debug("bridge message skipped",
				slog.String("event", "bridge.decode"),
				slog.String("bridge", b.base),
				slog.String("err", err.Error()),
			)
			continue
		}
		msg.EventID = ev.ID
		handle(msg)
		delivered++
	}
	return delivered
}

func (b *bridgeClient) decode(keys *SessionKeys, data string) (inbound, error) {
	var env bridgeMessage
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return inbound{}, fmt.Errorf("envelope: %w", err)
	}
	peer, err := parseKey(env.From)
	if err != nil {
		return inbound{}, err
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Message)
	if err != nil {
		return inbound{}, fmt.Errorf("message encoding: %w", err)
	}
	body, err := keys.Open(sealed, peer)
	if err != nil {
		return inbound{}, err
	}
	return inbound{From: strings.ToLower(env.From), Body: body}, nil
}
