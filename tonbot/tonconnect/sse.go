package tonconnect

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/m3rciful/tonbot/core/logger"
)

const (
	// maxSSELineSize bounds a single SSE line; longer lines end the stream.
	maxSSELineSize = 64 * 1024
	// maxSSEEventSize bounds the joined data of one event; larger events are dropped.
	maxSSEEventSize = 1024 * 1024
)

type sseEvent struct {
	Type string
	Data string
	ID   string
}

// openSSE issues the GET and hands the body to a reader goroutine.
// The returned channel is closed when the stream ends or ctx is done.
func openSSE(ctx context.Context, client *http.Client, url string) (<-chan sseEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tonconnect: sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tonconnect: sse connect: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	events := make(chan sseEvent, 100)
	go readSSE(ctx, resp.Body, events)
	return events, nil
}

func readSSE(ctx context.Context, body io.ReadCloser, events chan<- sseEvent) {
	defer close(events)
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, maxSSELineSize), maxSSELineSize)

	var (
		event     sseEvent
		dataLines []string
		size      int
		oversized bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(dataLines) > 0 && !oversized {
				event.Data = strings.Join(dataLines, "\n")
				if event.Type == "" {
					event.Type = "message"
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
			event, dataLines, size, oversized = sseEvent{}, nil, 0, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event.Type = value
		case "id":
			event.ID = value
		case "data":
			if oversized {
				continue
			}
			next := size + len(value)
			if size > 0 {
				next++
			}
			if next > maxSSEEventSize {
				logger.TON.Warn("sse event discarded",
					slog.String("event", "bridge.sse_oversized"),
					slog.Int("count", next),
				)
				oversized, dataLines = true, nil
				continue
			}
			dataLines = append(dataLines, value)
			size = next
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.TON.Debug("sse stream closed",
			slog.String("event", "bridge.sse_closed"),
			slog.String("err", err.Error()),
		)
	}
}
