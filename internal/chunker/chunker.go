package chunker

import (
	"github.com/oukeidos/ebt/internal/content"
	"github.com/rivo/uniseg"
)

// Batch is a contiguous run of items [Start, End) sent in one translation call,
// along with surrounding items passed as read-only context.
type Batch struct {
	Index   int
	Start   int
	End     int
	Items   []content.Item
	Context BeforeAfterContext
}

// BeforeAfterContext holds context items.
type BeforeAfterContext struct {
	Before []content.Item
	After  []content.Item
}

// Len returns the number of items in the batch.
func (b Batch) Len() int {
	return b.End - b.Start
}

// ItemSize is the budget cost of one item, counted in grapheme clusters.
func ItemSize(it content.Item) int {
	return uniseg.GraphemeClusterCount(it.Payload())
}

// Size returns the total budget cost of items.
func Size(items []content.Item) int {
	total := 0
	for _, it := range items {
		total += ItemSize(it)
	}
	return total
}

// Split packs items greedily into batches bounded by maxItems and maxChars.
// A batch is closed as soon as the next item would break either bound, so the
// batches keep the original order and cover every item exactly once. A single
// item larger than maxChars becomes a batch of its own. Non-positive bounds
// are treated as unlimited.
func Split(items []content.Item, maxItems, maxChars, contextSize int) []Batch {
	var batches []Batch
	n := len(items)
	start, chars := 0, 0

	for i := 0; i < n; i++ {
		size := ItemSize(items[i])
		count := i - start
		overItems := maxItems > 0 && count+1 > maxItems
		overChars := maxChars > 0 && count > 0 && chars+size > maxChars
		if count > 0 && (overItems || overChars) {
			batches = append(batches, newBatch(items, len(batches), start, i, contextSize))
			start, chars = i, 0
		}
		chars += size
	}
	if start < n {
		batches = append(batches, newBatch(items, len(batches), start, n, contextSize))
	}
	return batches
}

// Range builds the batch covering items[start:end] with its context.
func Range(items []content.Item, start, end, contextSize int) Batch {
	return newBatch(items, 0, start, end, contextSize)
}

func newBatch(items []content.Item, index, start, end, contextSize int) Batch {
	beforeStart := start - contextSize
	if beforeStart < 0 {
		beforeStart = 0
	}
	afterEnd := end + contextSize
	if afterEnd > len(items) {
		afterEnd = len(items)
	}
	return Batch{
		Index: index,
		Start: start,
		End:   end,
		Items: items[start:end],
		Context: BeforeAfterContext{
			Before: items[beforeStart:start],
			After:  items[end:afterEnd],
		},
	}
}
