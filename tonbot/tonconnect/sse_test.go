package tonconnect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOpenSSEParsesEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "id: 7\nevent: message\ndata: line1\ndata: line2\n\n")
		fmt.Fprint(w, "data: untyped\n\n")
		fmt.Fprint(w, "event: heartbeat\ndata: heartbeat\n\n")
		flusher.Flush()
		time.Sleep(50 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, err := openSSE(ctx, server.Client(), server.URL)
	if err != nil {
		t.Fatalf("openSSE: %v", err)
	}
	var got []sseEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	if got[0].ID != "7" || got[0].Data != "line1\nline2" || got[0].Type != "message" {
		t.Fatalf("first event = %+v", got[0])
	}
	if got[1].Type != "message" || got[1].Data != "untyped" {
		t.Fatalf("second event = %+v", got[1])
	}
	if got[2].Type != "heartbeat" {
		t.Fatalf("third event = %+v", got[2])
	}
}

func TestOpenSSEHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := openSSE(context.Background(), server.Client(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("openSSE error = %v, want 403", err)
	}
}
