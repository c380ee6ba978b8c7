package translator

import (
	"context"
	"fmt"
	"html"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/content"
	"github.com/oukeidos/ebt/internal/provider"
)

func TestMain(m *testing.M) {
	defaultRampUp = 0
	os.Exit(m.Run())
}

// echoClient answers every request with a well-formed fragment in which each
// text gets a "-ko" suffix. Hooks run before the reply is built.
type echoClient struct {
	calls  atomic.Int32
	before func(req provider.Request) error
	delay  time.Duration

	mu     sync.Mutex
	prompt string
	reqs   []provider.Request
}

func (c *echoClient) SetSystemInstruction(prompt string) { c.prompt = prompt }

func (c *echoClient) Translate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.before != nil {
		if err := c.before(req); err != nil {
			return nil, err
		}
	}
	return &provider.Response{
		TranslatedXHTML: echoFragment(req),
		Usage:           provider.Usage{PromptTokenCount: 2, CandidatesTokenCount: 1, TotalTokenCount: 3},
	}, nil
}

func echoFragment(req provider.Request) string {
	var sb strings.Builder
	for _, it := range req.Items {
		switch it.Type {
		case "image":
			fmt.Fprintf(&sb, `<img src="%s" alt="%s"/>`, html.EscapeString(it.Src), html.EscapeString(it.Alt+"-ko"))
		default:
			fmt.Fprintf(&sb, "<p>%s</p>", html.EscapeString(it.Text+"-ko"))
		}
	}
	return sb.String()
}

func testOptions() Options {
	return Options{
		TargetLanguage: "Korean",
		MaxItems:       3,
		MaxChars:       1000,
		ContextSize:    1,
		Concurrency:    2,
		Retry:          RetryPolicy{MaxAttempts: 2},
		Split:          SplitPolicy{MinChunkItems: 1, MinChunkChars: 0, MaxSplitAttempts: 3},
	}
}

func textItems(prefix string, n int) []content.Item {
	items := make([]content.Item, n)
	for i := range items {
		items[i] = content.Text(fmt.Sprintf("%s%d", prefix, i), "p")
	}
	return items
}

type collector struct {
	mu      sync.Mutex
	docs    map[string]DocumentResult
	events  []TranslationProgress
	reports int
}

func newCollector() *collector {
	return &collector{docs: map[string]DocumentResult{}}
}

func (c *collector) progress(p TranslationProgress) {
	c.mu.Lock()
	c.events = append(c.events, p)
	c.mu.Unlock()
}

func (c *collector) document(r DocumentResult) {
	c.mu.Lock()
	c.docs[r.DocID] = r
	c.reports++
	c.mu.Unlock()
}

func (c *collector) count(state TranslationState) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.State == state {
			n++
		}
	}
	return n
}

func checkCoverage(t *testing.T, r DocumentResult, n int) {
	t.Helper()
	next := 0
	for _, rg := range r.Ranges {
		if rg.Start != next {
			t.Fatalf("%s: range starts at %d, want %d", r.DocID, rg.Start, next)
		}
		if !rg.Fallback && len(rg.Items) != rg.End-rg.Start {
			t.Fatalf("%s: range [%d,%d) has %d items", r.DocID, rg.Start, rg.End, len(rg.Items))
		}
		next = rg.End
	}
	if next != n {
		t.Fatalf("%s: ranges end at %d, want %d", r.DocID, next, n)
	}
}

func TestRun_TranslatesAllDocumentsInOrder(t *testing.T) {
	client := &echoClient{}
	o, err := New(client, testOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	jobs := []Job{
		{DocID: "a", Items: textItems("a", 7)},
		{DocID: "b", Items: append(textItems("b", 2), content.Image("pic.png", "cat"))},
	}
	c := newCollector()
	if err := o.Run(context.Background(), jobs, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if c.reports != 2 {
		t.Fatalf("expected 2 document reports, got %d", c.reports)
	}
	a := c.docs["a"]
	checkCoverage(t, a, 7)
	if len(a.Ranges) != 3 {
		t.Errorf("expected 3 ranges for doc a, got %d", len(a.Ranges))
	}
	if got := a.Ranges[2].Items[0].Text; got != "a6-ko" {
		t.Errorf("last item = %q, want a6-ko", got)
	}

	b := c.docs["b"]
	checkCoverage(t, b, 3)
	img := b.Ranges[0].Items[2]
	if img.Kind != content.KindImage || img.Src != "pic.png" || img.Alt != "cat-ko" {
		t.Errorf("unexpected image item %#v", img)
	}
	if b.FallbackRanges != 0 {
		t.Errorf("expected no fallback ranges, got %d", b.FallbackRanges)
	}

	if !strings.Contains(client.prompt, "Korean") {
		t.Errorf("system prompt does not name the target language")
	}
	if u := o.Usage(); u.TotalTokenCount != 3*4 {
		t.Errorf("TotalTokenCount = %d, want 12", u.TotalTokenCount)
	}
}

func TestRun_RequestCarriesContextAndIDs(t *testing.T) {
	client := &echoClient{}
	opts := testOptions()
	opts.Concurrency = 1
	o, err := New(client, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	jobs := []Job{{DocID: "a", Items: textItems("x", 6)}}
	if err := o.Run(context.Background(), jobs, nil, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(client.reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(client.reqs))
	}
	second := client.reqs[1]
	if second.Items[0].ID != 3 || second.Items[0].Text != "x3" {
		t.Errorf("unexpected first item %#v", second.Items[0])
	}
	if len(second.ContextBefore) != 1 || second.ContextBefore[0].ID != 2 {
		t.Errorf("unexpected context before %#v", second.ContextBefore)
	}
	if len(second.ContextAfter) != 0 {
		t.Errorf("expected no context after, got %#v", second.ContextAfter)
	}
	if second.TargetLanguage != "Korean" {
		t.Errorf("TargetLanguage = %q", second.TargetLanguage)
	}
}

func TestRun_EmptyDocumentCompletes(t *testing.T) {
	client := &echoClient{}
	o, err := New(client, testOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	if err := o.Run(context.Background(), []Job{{DocID: "cover"}}, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := c.docs["cover"]; !ok {
		t.Fatalf("empty document was not reported")
	}
	if client.calls.Load() != 0 {
		t.Errorf("expected no calls, got %d", client.calls.Load())
	}
}

func TestRun_MismatchedFragmentFallsBack(t *testing.T) {
	client := &MockTranslator{Fragment: "<p>only one</p>"}
	o, err := New(client, testOptions())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	jobs := []Job{{DocID: "a", Items: textItems("a", 2)}}
	if err := o.Run(context.Background(), jobs, c.progress, c.document); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := client.calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
	r := c.docs["a"]
	if r.FallbackRanges != 1 || !r.Ranges[0].Fallback {
		t.Fatalf("expected a single fallback range, got %#v", r)
	}
	if c.count(StateRetrying) != 1 {
		t.Errorf("expected 1 retry event, got %d", c.count(StateRetrying))
	}
}

func TestRun_AuthErrorStopsRun(t *testing.T) {
	client := &echoClient{before: func(provider.Request) error {
		return apperrors.Auth(fmt.Errorf("bad key"))
	}}
	opts := testOptions()
	opts.Concurrency = 1
	o, err := New(client, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c := newCollector()
	jobs := []Job{
		{DocID: "a", Items: textItems("a", 3)},
		{DocID: "b", Items: textItems("b", 3)},
	}
	err = o.Run(context.Background(), jobs, c.progress, c.document)
	if !apperrors.Is(err, apperrors.KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if c.reports != 0 {
		t.Errorf("expected no documents reported, got %d", c.reports)
	}
	if got := client.calls.Load(); got != 1 {
		t.Errorf("expected the run to stop after 1 call, got %d", got)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, testOptions()); err == nil {
		t.Error("expected error for nil client")
	}
	opts := testOptions()
	opts.Concurrency = 0
	if _, err := New(&echoClient{}, opts); err == nil {
		t.Error("expected error for zero concurrency")
	}
	opts = testOptions()
	opts.MaxItems, opts.MaxChars = 0, 0
	if _, err := New(&echoClient{}, opts); err == nil {
		t.Error("expected error for unbounded batches")
	}
}

func TestGetSystemPrompt(t *testing.T) {
	p := GetSystemPrompt("Japanese", "  Use polite register.  ")
	if !strings.Contains(p, "into Japanese") {
		t.Error("prompt missing target language")
	}
	if !strings.Contains(p, provider.ResponseField) {
		t.Error("prompt missing response field")
	}
	if !strings.HasSuffix(p, "Use polite register.") {
		t.Error("prompt missing additional instructions")
	}
	if strings.Contains(GetSystemPrompt("Japanese", ""), "Additional Instructions") {
		t.Error("empty instructions should not add a section")
	}
}

// MockTranslator always returns the same fragment.
type MockTranslator struct {
	Fragment string
	calls    atomic.Int32
}

func (m *MockTranslator) SetSystemInstruction(prompt string) {}

func (m *MockTranslator) Translate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	m.calls.Add(1)
	return &provider.Response{TranslatedXHTML: m.Fragment}, nil
}
