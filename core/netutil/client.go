// Package netutil holds the outbound HTTP plumbing shared by the Telegram
// client, the TON Connect bridge and the wallets directory.
package netutil

import (
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes NewHTTPClient. Zero values keep the defaults except
// Timeout, where zero means no overall deadline (streaming responses).
type ClientOptions struct {
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	Retries               int
	Backoff               time.Duration
}

// APIOptions suits short request/response calls (Bot API, wallets list, bridge POST).
func APIOptions() ClientOptions {
	return ClientOptions{
		Timeout:               30 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		Retries:               3,
		Backoff:               2 * time.Second,
	}
}

// StreamOptions suits long-lived SSE subscriptions.
func StreamOptions() ClientOptions {
	return ClientOptions{
		ResponseHeaderTimeout: 15 * time.Second,
		Retries:               1,
		Backoff:               time.Second,
	}
}

// NewHTTPClient returns a client whose transport retries transient dial and
// timeout failures.
func NewHTTPClient(opts ClientOptions) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &RetryTransport{
			Base:       transport,
			MaxRetries: opts.Retries,
			Backoff:    opts.Backoff,
		},
	}
}

// RetryTransport re-sends requests that failed with a retryable error.
// Requests with a body are retried only when GetBody is set.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	Backoff    time.Duration
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.Backoff * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
