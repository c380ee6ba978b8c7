package reconstruct

import (
	"fmt"
	"html"
	"strings"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/content"
	"github.com/oukeidos/ebt/internal/segmenter"
)

// Range is the result for items [Start, End) of a document. Items holds the
// translated items; a fallback range keeps the original items instead.
type Range struct {
	Start    int
	End      int
	Items    []content.Item
	Fallback bool
}

// ParseFragment reads a translated XHTML fragment and lines it up with the
// items it was produced from. The fragment must contain the same number of
// text blocks and images, in the same order, with identical image sources.
func ParseFragment(items []content.Item, fragment string) ([]content.Item, error) {
	doc, err := segmenter.Segment([]byte("<html><body>" + fragment + "</body></html>"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse translated fragment: %w", err)
	}
	got := doc.Items
	if len(got) != len(items) {
		return nil, fmt.Errorf("item count mismatch: expected %d, got %d", len(items), len(got))
	}
	out := make([]content.Item, len(items))
	for i, orig := range items {
		tr := got[i]
		if tr.Kind != orig.Kind {
			return nil, fmt.Errorf("item %d: expected %s, got %s", i, orig.Kind, tr.Kind)
		}
		switch orig.Kind {
		case content.KindText:
			if tr.Text == "" && orig.Text != "" {
				return nil, fmt.Errorf("item %d: empty translation", i)
			}
		case content.KindImage:
			if tr.Src != orig.Src {
				return nil, fmt.Errorf("item %d: image source changed from %q to %q", i, orig.Src, tr.Src)
			}
			if tr.Alt == "" && orig.Alt != "" {
				// Keep the original alternate text rather than lose it.
				tr.Alt = orig.Alt
			}
		}
		out[i] = orig.WithPayload(tr.Payload())
	}
	return out, nil
}

// Options control the document wrapper.
type Options struct {
	Lang string
}

// Build merges the ranges of one document, in order, into a complete XHTML
// document. Ranges must cover every item exactly once.
func Build(doc content.Document, ranges []Range, opts Options) (string, error) {
	merged, err := merge(doc.Items, ranges)
	if err != nil {
		return "", apperrors.Reconstruction(err)
	}
	lang := opts.Lang
	if lang == "" {
		lang = doc.Lang
	}
	return render(doc, merged, lang), nil
}

func merge(items []content.Item, ranges []Range) ([]content.Item, error) {
	merged := make([]content.Item, 0, len(items))
	next := 0
	for _, r := range ranges {
		if r.Start != next {
			return nil, fmt.Errorf("range [%d,%d) does not continue at item %d", r.Start, r.End, next)
		}
		if r.End <= r.Start || r.End > len(items) {
			return nil, fmt.Errorf("range [%d,%d) is out of bounds for %d items", r.Start, r.End, len(items))
		}
		orig := items[r.Start:r.End]
		if r.Fallback {
			merged = append(merged, orig...)
			next = r.End
			continue
		}
		if len(r.Items) != len(orig) {
			return nil, fmt.Errorf("range [%d,%d) holds %d items", r.Start, r.End, len(r.Items))
		}
		for i, it := range r.Items {
			if it.Kind != orig[i].Kind {
				return nil, fmt.Errorf("item %d: expected %s, got %s", r.Start+i, orig[i].Kind, it.Kind)
			}
			if it.Kind == content.KindImage && it.Src != orig[i].Src {
				return nil, fmt.Errorf("item %d: image source changed", r.Start+i)
			}
		}
		merged = append(merged, r.Items...)
		next = r.End
	}
	if next != len(items) {
		return nil, fmt.Errorf("ranges end at item %d of %d", next, len(items))
	}
	return merged, nil
}

var allowedBlocks = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "figcaption": true,
}

func render(doc content.Document, items []content.Item, lang string) string {
	esc := html.EscapeString
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"`)
	if lang != "" {
		fmt.Fprintf(&sb, ` xml:lang="%s" lang="%s"`, esc(lang), esc(lang))
	}
	sb.WriteString(">\n<head>\n  <meta charset=\"utf-8\"/>\n")
	fmt.Fprintf(&sb, "  <title>%s</title>\n", esc(doc.Title))
	for _, href := range doc.Stylesheets {
		fmt.Fprintf(&sb, "  <link rel=\"stylesheet\" type=\"text/css\" href=\"%s\"/>\n", esc(href))
	}
	sb.WriteString("</head>\n<body>\n")
	for _, it := range items {
		switch it.Kind {
		case content.KindText:
			block := it.Block
			if !allowedBlocks[block] {
				block = content.DefaultBlock
			}
			fmt.Fprintf(&sb, "  <%s>%s</%s>\n", block, esc(it.Text), block)
		case content.KindImage:
			fmt.Fprintf(&sb, "  <img src=\"%s\" alt=\"%s\"/>\n", esc(it.Src), esc(it.Alt))
		}
	}
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
