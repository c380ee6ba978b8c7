package chunker

import (
	"reflect"
	"strings"
	"testing"

	"github.com/oukeidos/ebt/internal/content"
)

func TestSplitByItemCount(t *testing.T) {
	items := []content.Item{
		content.Text("A", "p"),
		content.Image("i.jpg", "alt"),
		content.Text("B", "p"),
	}

	batches := Split(items, 2, 1000, 0)

	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}
	if batches[0].Start != 0 || batches[0].End != 2 {
		t.Errorf("Batch 0: expected [0,2), got [%d,%d)", batches[0].Start, batches[0].End)
	}
	if batches[1].Start != 2 || batches[1].End != 3 {
		t.Errorf("Batch 1: expected [2,3), got [%d,%d)", batches[1].Start, batches[1].End)
	}
	if batches[1].Items[0].Text != "B" {
		t.Errorf("Batch 1: expected item B, got %q", batches[1].Items[0].Text)
	}
}

func TestSplitByCharBudget(t *testing.T) {
	items := []content.Item{
		content.Text("aaaa", "p"),
		content.Text("bbbb", "p"),
		content.Text("cccc", "p"),
	}

	batches := Split(items, 10, 8, 0)

	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches, got %d", len(batches))
	}
	if batches[0].Len() != 2 || batches[1].Len() != 1 {
		t.Errorf("Unexpected batch sizes: %d, %d", batches[0].Len(), batches[1].Len())
	}
}

func TestSplitOversizedItemStandsAlone(t *testing.T) {
	long := strings.Repeat("x", 50)
	items := []content.Item{
		content.Text("short", "p"),
		content.Text(long, "p"),
		content.Text("tail", "p"),
	}

	batches := Split(items, 10, 20, 0)

	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if batches[1].Items[0].Text != long {
		t.Errorf("Oversized item was modified")
	}
	if batches[1].Len() != 1 {
		t.Errorf("Oversized item should be alone, got %d items", batches[1].Len())
	}
}

func TestSplitGraphemeBudget(t *testing.T) {
	// Each flag is one grapheme made of two runes.
	items := []content.Item{
		content.Text("🇰🇷🇯🇵", "p"),
		content.Text("🇺🇸🇫🇷", "p"),
	}
	batches := Split(items, 10, 4, 0)
	if len(batches) != 1 {
		t.Fatalf("Expected grapheme counting to fit one batch, got %d", len(batches))
	}
}

func TestSplitRoundTrip(t *testing.T) {
	var items []content.Item
	for i := 0; i < 137; i++ {
		if i%7 == 3 {
			items = append(items, content.Image("img.png", strings.Repeat("a", i%5)))
			continue
		}
		items = append(items, content.Text(strings.Repeat("w", (i*31)%90), "p"))
	}

	for _, bounds := range [][2]int{{1, 0}, {5, 100}, {50, 6000}, {0, 30}, {3, 1}} {
		batches := Split(items, bounds[0], bounds[1], 2)
		var rebuilt []content.Item
		next := 0
		for i, b := range batches {
			if b.Index != i {
				t.Fatalf("bounds %v: batch index %d, want %d", bounds, b.Index, i)
			}
			if b.Start != next {
				t.Fatalf("bounds %v: batch %d starts at %d, want %d", bounds, i, b.Start, next)
			}
			if bounds[0] > 0 && b.Len() > bounds[0] {
				t.Fatalf("bounds %v: batch %d has %d items", bounds, i, b.Len())
			}
			if bounds[1] > 0 && b.Len() > 1 && Size(b.Items) > bounds[1] {
				t.Fatalf("bounds %v: batch %d has size %d", bounds, i, Size(b.Items))
			}
			next = b.End
			rebuilt = append(rebuilt, b.Items...)
		}
		if !reflect.DeepEqual(rebuilt, items) {
			t.Fatalf("bounds %v: concatenated batches differ from input", bounds)
		}
	}
}

func TestSplitContext(t *testing.T) {
	items := make([]content.Item, 10)
	for i := range items {
		items[i] = content.Text(string(rune('a'+i)), "p")
	}

	batches := Split(items, 4, 0, 2)

	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if len(batches[0].Context.Before) != 0 || len(batches[0].Context.After) != 2 {
		t.Errorf("Batch 0: unexpected context sizes %d/%d", len(batches[0].Context.Before), len(batches[0].Context.After))
	}
	if batches[1].Context.Before[0].Text != "c" {
		t.Errorf("Batch 1: first before context expected c, got %q", batches[1].Context.Before[0].Text)
	}
	if len(batches[2].Context.After) != 0 {
		t.Errorf("Batch 2: expected no after context, got %d", len(batches[2].Context.After))
	}
}

func TestSplitEmpty(t *testing.T) {
	if got := Split(nil, 5, 100, 1); len(got) != 0 {
		t.Fatalf("Expected no batches, got %d", len(got))
	}
}
