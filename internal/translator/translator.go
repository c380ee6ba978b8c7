package translator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/chunker"
	"github.com/oukeidos/ebt/internal/content"
	"github.com/oukeidos/ebt/internal/logger"
	"github.com/oukeidos/ebt/internal/provider"
	"github.com/oukeidos/ebt/internal/reconstruct"
	"golang.org/x/time/rate"
)

// Job is one document whose items must be translated.
type Job struct {
	DocID string
	Items []content.Item
}

// DocumentResult is reported once every range of a document reached a
// terminal state. Ranges are sorted by position and cover all items.
type DocumentResult struct {
	DocID          string
	Ranges         []reconstruct.Range
	FallbackRanges int
}

// Options configures an Orchestrator.
type Options struct {
	// TargetLanguage is the display name used in prompts, e.g. "Korean".
	TargetLanguage string
	// Instructions are appended to the system prompt.
	Instructions string

	MaxItems    int
	MaxChars    int
	ContextSize int
	Concurrency int
	// RequestsPerMinute is shared by all workers. Zero disables the limit.
	RequestsPerMinute int
	// AttemptTimeout bounds a single call. Zero leaves it to the client.
	AttemptTimeout time.Duration

	Retry RetryPolicy
	Split SplitPolicy
}

// Orchestrator drives batches through the translation client.
type Orchestrator struct {
	client  provider.Translator
	opts    Options
	usage   provider.Usage
	usageMu sync.Mutex
}

// New creates a new Orchestrator instance.
func New(client provider.Translator, opts Options) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("translation client is required")
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be greater than 0, got %d", opts.Concurrency)
	}
	if opts.MaxItems <= 0 && opts.MaxChars <= 0 {
		return nil, fmt.Errorf("at least one batch bound must be set")
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Orchestrator{client: client, opts: opts}, nil
}

// TranslationState represents the current state of a batch.
type TranslationState int

const (
	StateStarted TranslationState = iota
	StateRetrying
	StateSplit
	StateCompleted
	StateFallback
	StateCanceled
)

func (s TranslationState) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateRetrying:
		return "retrying"
	case StateSplit:
		return "split"
	case StateCompleted:
		return "completed"
	case StateFallback:
		return "fallback"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

var defaultRampUp = 2 * time.Second

// TranslationProgress describes one event for the item range [Start, End) of a document.
type TranslationProgress struct {
	DocID   string
	Start   int
	End     int
	Depth   int
	Attempt int
	State   TranslationState
	Error   error
}

// unit is one queued range of a document at a given split depth.
type unit struct {
	doc   int
	start int
	end   int
	depth int
}

type docState struct {
	job         Job
	mu          sync.Mutex
	outstanding int
	ranges      []reconstruct.Range
	fallback    int
	abandoned   bool
}

// Run translates all jobs and calls onDocument as each document completes.
// onDocument may be called concurrently for different documents.
//
// Cancelling ctx stops new work. Calls already sent are allowed to finish so
// their documents can still be reported; documents with unfinished ranges are
// not reported. Run returns ctx.Err() in that case, or the first fatal
// client error (authentication) that made further calls pointless.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job, onProgress func(TranslationProgress), onDocument func(DocumentResult)) error {
	o.setSystemInstruction()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q := newQueue()
	docs := make([]*docState, len(jobs))
	for i, job := range jobs {
		ds := &docState{job: job}
		docs[i] = ds
		batches := chunker.Split(job.Items, o.opts.MaxItems, o.opts.MaxChars, 0)
		if len(batches) == 0 {
			if onDocument != nil {
				onDocument(DocumentResult{DocID: job.DocID})
			}
			continue
		}
		ds.outstanding = len(batches)
		for _, b := range batches {
			q.push(unit{doc: i, start: b.Start, end: b.End})
		}
	}

	stopWatch := context.AfterFunc(runCtx, q.close)
	defer stopWatch()

	limiter := newRateLimiter(o.opts.RequestsPerMinute)

	var fatalOnce sync.Once
	var fatalErr error
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	var wg sync.WaitGroup
	for w := 0; w < o.opts.Concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			if delay := rampDelay(worker, o.opts.Concurrency, defaultRampUp); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-runCtx.Done():
					timer.Stop()
				case <-timer.C:
				}
			}
			for {
				u, ok := q.pop()
				if !ok {
					return
				}
				o.process(runCtx, q, limiter, docs, u, onProgress, onDocument, fail)
				q.done()
			}
		}(w)
	}
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	if err := ctx.Err(); err != nil {
		if onProgress != nil {
			onProgress(TranslationProgress{Start: -1, End: -1, State: StateCanceled, Error: err})
		}
		return err
	}
	return nil
}

type outcome int

const (
	outcomeTranslated outcome = iota
	outcomeSplit
	outcomeFallback
	outcomeAbandoned
)

func (o *Orchestrator) process(ctx context.Context, q *queue, limiter *rate.Limiter, docs []*docState, u unit, onProgress func(TranslationProgress), onDocument func(DocumentResult), fail func(error)) {
	ds := docs[u.doc]
	items := ds.job.Items
	batch := chunker.Range(items, u.start, u.end, o.opts.ContextSize)
	report := func(state TranslationState, attempt int, err error) {
		if onProgress != nil {
			onProgress(TranslationProgress{
				DocID:   ds.job.DocID,
				Start:   u.start,
				End:     u.end,
				Depth:   u.depth,
				Attempt: attempt,
				State:   state,
				Error:   err,
			})
		}
	}

	result, translated, err := o.attempt(ctx, limiter, batch, report)
	switch result {
	case outcomeTranslated:
		report(StateCompleted, 0, nil)
		ds.finish(reconstruct.Range{Start: u.start, End: u.end, Items: translated}, false, onDocument)
		return
	case outcomeAbandoned:
		if apperrors.Is(err, apperrors.KindAuth) {
			fail(err)
		}
		report(StateCanceled, 0, err)
		ds.abandon()
		return
	}

	log := logger.With("doc", ds.job.DocID, "start", u.start, "end", u.end, "depth", u.depth)
	if apperrors.IsSafety(err) {
		size := chunker.Size(batch.Items)
		if o.opts.Split.CanSplit(batch.Len(), size, u.depth) {
			mid := splitPoint(items, u.start, u.end)
			report(StateSplit, 0, err)
			log.Debug("Batch rejected, splitting", "mid", mid)
			ds.split()
			q.push(unit{doc: u.doc, start: u.start, end: mid, depth: u.depth + 1})
			q.push(unit{doc: u.doc, start: mid, end: u.end, depth: u.depth + 1})
			return
		}
		log.Warn("Batch rejected and cannot be split further; keeping original")
	} else {
		log.Error("Batch failed; keeping original", "error", err)
	}
	report(StateFallback, 0, err)
	ds.finish(reconstruct.Range{Start: u.start, End: u.end, Fallback: true}, true, onDocument)
}

// attempt sends one batch until it succeeds, is rejected, or retries run out.
func (o *Orchestrator) attempt(ctx context.Context, limiter *rate.Limiter, batch chunker.Batch, report func(TranslationState, int, error)) (outcome, []content.Item, error) {
	req := o.prepareRequest(batch)
	var err error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return outcomeAbandoned, nil, ctx.Err()
		}
		if limiter != nil {
			if werr := limiter.Wait(ctx); werr != nil {
				return outcomeAbandoned, nil, werr
			}
		}
		state := StateStarted
		if attempt > 1 {
			state = StateRetrying
		}
		report(state, attempt, err)

		var translated []content.Item
		translated, err = o.call(ctx, req, batch.Items)
		if err == nil {
			return outcomeTranslated, translated, nil
		}
		if apperrors.IsSafety(err) {
			return outcomeFallback, nil, err
		}
		if apperrors.Is(err, apperrors.KindAuth) {
			return outcomeAbandoned, nil, err
		}

		retry, backoff := o.opts.Retry.Decide(ctx, err, attempt)
		if !retry {
			return outcomeFallback, nil, err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return outcomeAbandoned, nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// call performs one request. The request is detached from cancellation so
// an in-flight batch can still finish after a stop was requested.
func (o *Orchestrator) call(ctx context.Context, req provider.Request, items []content.Item) ([]content.Item, error) {
	callCtx := context.WithoutCancel(ctx)
	if o.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, o.opts.AttemptTimeout)
		defer cancel()
	}
	resp, err := o.client.Translate(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.KindTransient, "Translation request timed out.", err)
		}
		return nil, err
	}
	if resp == nil {
		return nil, apperrors.Validation(fmt.Errorf("empty response"))
	}
	o.usageMu.Lock()
	o.usage.Add(resp.Usage)
	o.usageMu.Unlock()

	translated, err := reconstruct.ParseFragment(items, resp.TranslatedXHTML)
	if err != nil {
		return nil, apperrors.Validation(err)
	}
	return translated, nil
}

func (o *Orchestrator) prepareRequest(batch chunker.Batch) provider.Request {
	return provider.Request{
		TargetLanguage: o.opts.TargetLanguage,
		ContextBefore:  toItemData(batch.Context.Before, batch.Start-len(batch.Context.Before)),
		Items:          toItemData(batch.Items, batch.Start),
		ContextAfter:   toItemData(batch.Context.After, batch.End),
	}
}

func toItemData(items []content.Item, offset int) []provider.ItemData {
	if len(items) == 0 {
		return nil
	}
	data := make([]provider.ItemData, len(items))
	for i, it := range items {
		d := provider.ItemData{ID: offset + i, Type: it.Kind.String()}
		switch it.Kind {
		case content.KindText:
			d.Text = it.Text
		case content.KindImage:
			d.Src = it.Src
			d.Alt = it.Alt
		}
		data[i] = d
	}
	return data
}

func (o *Orchestrator) setSystemInstruction() {
	o.client.SetSystemInstruction(GetSystemPrompt(o.opts.TargetLanguage, o.opts.Instructions))
}

// Usage returns the total token usage.
func (o *Orchestrator) Usage() provider.Usage {
	o.usageMu.Lock()
	defer o.usageMu.Unlock()
	return o.usage
}

func (d *docState) split() {
	d.mu.Lock()
	d.outstanding++
	d.mu.Unlock()
}

func (d *docState) abandon() {
	d.mu.Lock()
	d.abandoned = true
	d.outstanding--
	d.mu.Unlock()
}

func (d *docState) finish(r reconstruct.Range, fallback bool, onDocument func(DocumentResult)) {
	d.mu.Lock()
	d.ranges = append(d.ranges, r)
	if fallback {
		d.fallback++
	}
	d.outstanding--
	complete := d.outstanding == 0 && !d.abandoned
	var result DocumentResult
	if complete {
		sort.Slice(d.ranges, func(i, j int) bool { return d.ranges[i].Start < d.ranges[j].Start })
		result = DocumentResult{DocID: d.job.DocID, Ranges: d.ranges, FallbackRanges: d.fallback}
	}
	d.mu.Unlock()
	if complete && onDocument != nil {
		onDocument(result)
	}
}

func newRateLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
}

func rampDelay(worker, concurrency int, ramp time.Duration) time.Duration {
	if ramp <= 0 || concurrency <= 1 {
		return 0
	}
	return time.Duration(int64(ramp) * int64(worker) / int64(concurrency-1))
}
