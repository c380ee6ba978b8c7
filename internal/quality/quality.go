package quality

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/oukeidos/ebt/internal/content"
)

// Report lists problems found in a rebuilt document. Problems fail the
// check; Warnings are informational.
type Report struct {
	Problems []string
	Warnings []string
}

// OK reports whether no problems were found.
func (r Report) OK() bool {
	return len(r.Problems) == 0
}

func (r Report) Error() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("quality check failed: %s", strings.Join(r.Problems, "; "))
}

// textContainers are the elements counted as carrying translated text.
const textContainers = "p, div, h1, h2, h3, h4, h5, h6, blockquote, pre, figcaption, li"

// foreignContent is markup the items do not carry. Each element of it in the
// source must still be present in the rebuilt document.
var foreignContent = []string{"svg", "math"}

// Check verifies that doc is well-formed XML and that nothing obvious was
// lost compared with source, the original document, and its items. A nil
// source skips the comparison of foreign content.
func Check(source []byte, items []content.Item, doc string) Report {
	var r Report
	if strings.TrimSpace(doc) == "" {
		if len(items) > 0 {
			r.Problems = append(r.Problems, "document is empty but source content existed")
		}
		return r
	}
	if err := wellFormed(doc); err != nil {
		r.Problems = append(r.Problems, fmt.Sprintf("document is not well-formed: %v", err))
	}

	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		r.Problems = append(r.Problems, fmt.Sprintf("document could not be parsed: %v", err))
		return r
	}
	body := dom.Find("body")
	if source != nil {
		r.Problems = append(r.Problems, compareForeign(source, body)...)
	}

	texts := 0
	for _, it := range items {
		if it.Kind == content.KindText && strings.TrimSpace(it.Text) != "" {
			texts++
		}
	}
	containers := body.Find(textContainers).Length()
	if texts > 0 && containers == 0 {
		r.Problems = append(r.Problems, fmt.Sprintf("source had %d text items but document has no text containers", texts))
	} else if texts > 5 && texts > containers*2 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("source had %d text items, document has only %d text containers", texts, containers))
	}

	want := content.Images(items)
	imgs := body.Find("img")
	if imgs.Length() != len(want) {
		r.Problems = append(r.Problems, fmt.Sprintf("image count mismatch: source %d, document %d", len(want), imgs.Length()))
	}
	imgs.Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			r.Problems = append(r.Problems, fmt.Sprintf("image %d has no src", i))
			return
		}
		if i < len(want) && src != want[i] {
			r.Problems = append(r.Problems, fmt.Sprintf("image %d: expected src %q, got %q", i, want[i], src))
		}
	})
	return r
}

func compareForeign(source []byte, body *goquery.Selection) []string {
	src, err := goquery.NewDocumentFromReader(bytes.NewReader(source))
	if err != nil {
		return []string{fmt.Sprintf("source could not be parsed: %v", err)}
	}
	var problems []string
	for _, tag := range foreignContent {
		want, got := src.Find("body "+tag).Length(), body.Find(tag).Length()
		if want != got {
			problems = append(problems, fmt.Sprintf("%s element count mismatch: source %d, document %d", tag, want, got))
		}
	}
	return problems
}

func wellFormed(doc string) error {
	dec := xml.NewDecoder(strings.NewReader(doc))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
