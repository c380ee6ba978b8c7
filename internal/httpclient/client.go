// Package httpclient holds the shared HTTP client used for model calls.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/oukeidos/ebt/internal/version"
)

const (
	// DefaultTimeout bounds one model call. A long chapter batch can take
	// minutes to generate.
	DefaultTimeout = 10 * time.Minute
	// MaxResponseBytes caps a response body.
	MaxResponseBytes = 8 << 20

	maxIdleConnsPerHost = 20
	idleConnTimeout     = 2 * time.Minute
	tlsHandshakeTimeout = 30 * time.Second
	http2PingTimeout    = 15 * time.Second
	http2ReadIdle       = 45 * time.Second
)

var (
	mu       sync.Mutex
	shared   *http.Client
	override *http.Client
)

// New returns a client with the given overall timeout. Its transport speaks
// HTTP/2 with health-check pings so a silently dropped connection fails the
// call instead of hanging until the timeout.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	if h2, err := http2.ConfigureTransports(transport); err == nil {
		h2.ReadIdleTimeout = http2ReadIdle
		h2.PingTimeout = http2PingTimeout
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// Default returns the process-wide client.
func Default() *http.Client {
	mu.Lock()
	defer mu.Unlock()
	if override != nil {
		return override
	}
	if shared == nil {
		shared = New(DefaultTimeout)
	}
	return shared
}

// Override makes Default return client until the returned restore is called.
func Override(client *http.Client) (restore func()) {
	mu.Lock()
	prev := override
	override = client
	mu.Unlock()
	return func() {
		mu.Lock()
		override = prev
		mu.Unlock()
	}
}

// PostJSON marshals payload, posts it to url with headers and returns the
// status code and the body. Transport failures are returned as errors; HTTP
// error statuses are not, so callers can classify them from the body.
func PostJSON(ctx context.Context, url string, headers map[string]string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ebt/"+version.Version)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := Default().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := readLimited(resp)
	return resp.StatusCode, body, err
}

func readLimited(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > MaxResponseBytes {
		return nil, fmt.Errorf("response body too large (limit %d bytes)", MaxResponseBytes)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("response body too large (limit %d bytes)", MaxResponseBytes)
	}
	return body, nil
}
