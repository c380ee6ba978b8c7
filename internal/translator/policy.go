package translator

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/chunker"
	"github.com/oukeidos/ebt/internal/content"
)

// RetryPolicy decides whether a failed call is attempted again.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  20 * time.Second,
		MaxJitter:   1 * time.Second,
	}
}

// Decide reports whether attempt should be followed by another one and how
// long to wait before it. Safety rejections are never retried.
func (p RetryPolicy) Decide(ctx context.Context, err error, attempt int) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false, 0
	}
	if !apperrors.IsRetryable(err) {
		return false, 0
	}

	backoff := p.BaseBackoff << (attempt - 1)
	if apperrors.IsRateLimit(err) {
		backoff = backoff * 2
	}
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	var jitter time.Duration
	if p.MaxJitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return true, backoff + jitter
}

// SplitPolicy bounds how far a rejected batch is subdivided.
type SplitPolicy struct {
	MinChunkItems    int
	MinChunkChars    int
	MaxSplitAttempts int
}

// DefaultSplitPolicy returns the policy used when none is configured.
func DefaultSplitPolicy() SplitPolicy {
	return SplitPolicy{MinChunkItems: 1, MinChunkChars: 100, MaxSplitAttempts: 3}
}

// CanSplit reports whether a rejected range of n items and the given size at
// depth may be divided again. A single item is never split.
func (p SplitPolicy) CanSplit(n, size, depth int) bool {
	if n <= 1 {
		return false
	}
	if n <= p.MinChunkItems {
		return false
	}
	if size <= p.MinChunkChars {
		return false
	}
	return depth < p.MaxSplitAttempts
}

// splitPoint returns the item boundary in (start, end) closest to the middle
// of the range measured in characters. Ties go to the more even item split.
func splitPoint(items []content.Item, start, end int) int {
	total := chunker.Size(items[start:end])
	best, bestDiff, bestSkew := start+1, -1, 0
	acc := 0
	for i := start + 1; i < end; i++ {
		acc += chunker.ItemSize(items[i-1])
		diff := abs(2*acc - total)
		skew := abs(2*(i-start) - (end - start))
		if bestDiff < 0 || diff < bestDiff || (diff == bestDiff && skew < bestSkew) {
			best, bestDiff, bestSkew = i, diff, skew
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
