package translator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/content"
	"github.com/oukeidos/ebt/internal/provider"
)

type sequenceClient struct {
	mu        sync.Mutex
	errs      []error
	calls     int
	fragments []string
}

func (c *sequenceClient) Translate(ctx context.Context, request provider.Request) (*provider.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i < len(c.fragments) && c.fragments[i] != "" {
		return &provider.Response{TranslatedXHTML: c.fragments[i]}, nil
	}
	return &provider.Response{TranslatedXHTML: echoFragment(request)}, nil
}

func (c *sequenceClient) SetSystemInstruction(prompt string) {}

func TestRetryPolicy_TransientRetries(t *testing.T) {
	client := &sequenceClient{errs: []error{
		apperrors.Transient(errors.New("503")),
		apperrors.RateLimit(errors.New("429")),
	}}
	opts := testOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 3}
	o, err := New(client, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	jobs := []Job{{DocID: "a", Items: []content.Item{content.Text("hello", "p")}}}
	if err := o.Run(context.Background(), jobs, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", client.calls)
	}
	r := c.docs["a"]
	if r.FallbackRanges != 0 || r.Ranges[0].Items[0].Text != "hello-ko" {
		t.Fatalf("unexpected result %#v", r)
	}
}

// stallOnceClient blocks its first request until the request context ends.
type stallOnceClient struct {
	mu    sync.Mutex
	calls int
}

func (c *stallOnceClient) Translate(ctx context.Context, request provider.Request) (*provider.Response, error) {
	c.mu.Lock()
	c.calls++
	first := c.calls == 1
	c.mu.Unlock()
	if first {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &provider.Response{TranslatedXHTML: echoFragment(request)}, nil
}

func (c *stallOnceClient) SetSystemInstruction(prompt string) {}

func TestRetryPolicy_AttemptTimeoutRetries(t *testing.T) {
	client := &stallOnceClient{}
	opts := testOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 2}
	opts.AttemptTimeout = 20 * time.Millisecond
	o, err := New(client, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	jobs := []Job{{DocID: "a", Items: []content.Item{content.Text("hello", "p")}}}
	if err := o.Run(context.Background(), jobs, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", client.calls)
	}
	if c.count(StateRetrying) != 1 || c.count(StateFallback) != 0 || c.count(StateSplit) != 0 {
		t.Fatalf("unexpected progress events %#v", c.events)
	}
	r := c.docs["a"]
	if r.FallbackRanges != 0 || r.Ranges[0].Items[0].Text != "hello-ko" {
		t.Fatalf("unexpected result %#v", r)
	}
}

func TestRetryPolicy_ValidationRetries(t *testing.T) {
	client := &sequenceClient{fragments: []string{"<p>a</p><p>b</p>", ""}}
	opts := testOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 3}
	o, err := New(client, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	jobs := []Job{{DocID: "a", Items: []content.Item{content.Text("hello", "p")}}}
	if err := o.Run(context.Background(), jobs, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", client.calls)
	}
	if c.docs["a"].FallbackRanges != 0 {
		t.Fatalf("expected recovery after invalid fragment")
	}
}

func TestRetryPolicy_BadRequestFallsBackWithoutRetry(t *testing.T) {
	client := &sequenceClient{errs: []error{apperrors.BadRequest(errors.New("400"))}}
	opts := testOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 3}
	o, err := New(client, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	jobs := []Job{{DocID: "a", Items: []content.Item{content.Text("hello", "p")}}}
	if err := o.Run(context.Background(), jobs, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 call, got %d", client.calls)
	}
	if c.docs["a"].FallbackRanges != 1 {
		t.Fatalf("expected fallback")
	}
}

func TestRetryPolicy_Decide(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, MaxBackoff: 3 * time.Second}
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context
		err     error
		attempt int
		retry   bool
		backoff time.Duration
	}{
		{"nil error", context.Background(), nil, 1, false, 0},
		{"transient first", context.Background(), apperrors.Transient(errors.New("x")), 1, true, time.Second},
		{"transient second", context.Background(), apperrors.Transient(errors.New("x")), 2, true, 2 * time.Second},
		{"rate limit doubled and capped", context.Background(), apperrors.RateLimit(errors.New("x")), 2, true, 3 * time.Second},
		{"attempts exhausted", context.Background(), apperrors.Transient(errors.New("x")), 3, false, 0},
		{"safety", context.Background(), apperrors.Safety(errors.New("x")), 1, false, 0},
		{"auth", context.Background(), apperrors.Auth(errors.New("x")), 1, false, 0},
		{"canceled context", canceled, apperrors.Transient(errors.New("x")), 1, false, 0},
		{"canceled error", context.Background(), fmt.Errorf("wrap: %w", context.Canceled), 1, false, 0},
		{"attempt timeout", context.Background(), apperrors.New(apperrors.KindTransient, "timeout", context.DeadlineExceeded), 1, true, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retry, backoff := p.Decide(tt.ctx, tt.err, tt.attempt)
			if retry != tt.retry || backoff != tt.backoff {
				t.Errorf("Decide() = (%v, %v), want (%v, %v)", retry, backoff, tt.retry, tt.backoff)
			}
		})
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Second, MaxJitter: 500 * time.Millisecond}
	for i := 0; i < 20; i++ {
		_, backoff := p.Decide(context.Background(), apperrors.Transient(errors.New("x")), 1)
		if backoff < time.Second || backoff >= 1500*time.Millisecond {
			t.Fatalf("backoff %v outside [1s, 1.5s)", backoff)
		}
	}
}
