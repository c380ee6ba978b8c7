package segmenter

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/oukeidos/ebt/internal/apperrors"
	"github.com/oukeidos/ebt/internal/content"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ignored subtrees never produce items.
var ignored = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Title:    true,
	atom.Head:     true,
	atom.Noscript: true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Applet:   true,
	atom.Iframe:   true,
	atom.Math:     true,
	atom.Template: true,
}

// blocks flush the pending text on entry and on exit.
var blocks = map[atom.Atom]bool{
	atom.P:          true,
	atom.Div:        true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Dl:         true,
	atom.Dt:         true,
	atom.Dd:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Section:    true,
	atom.Article:    true,
	atom.Aside:      true,
	atom.Header:     true,
	atom.Footer:     true,
	atom.Nav:        true,
	atom.Figure:     true,
	atom.Figcaption: true,
	atom.Table:      true,
	atom.Tr:         true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Caption:    true,
	atom.Hr:         true,
	atom.Body:       true,
}

// Blocks kept as-is when rebuilding. Everything else becomes a paragraph.
var keptBlocks = map[atom.Atom]bool{
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Figcaption: true,
}

// Segment parses one XHTML document into its ordered content items.
func Segment(raw []byte) (content.Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return content.Document{}, apperrors.Malformed(fmt.Errorf("document is empty"))
	}
	if !utf8.Valid(raw) {
		return content.Document{}, apperrors.Malformed(fmt.Errorf("document is not valid UTF-8"))
	}
	if err := requireRoot(raw); err != nil {
		return content.Document{}, apperrors.Malformed(err)
	}
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return content.Document{}, apperrors.Malformed(fmt.Errorf("failed to parse markup: %w", err))
	}

	var doc content.Document
	readHead(root, &doc)

	w := &walker{}
	start := find(root, atom.Body)
	if start == nil {
		start = root
	}
	w.walk(start, content.DefaultBlock)
	w.flush()
	doc.Items = w.items
	return doc, nil
}

// Opaque turns a document that could not be segmented into a single text item
// holding its tag-stripped, whitespace-collapsed content.
func Opaque(raw []byte) content.Document {
	var sb strings.Builder
	z := html.NewTokenizer(bytes.NewReader(raw))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			doc := content.Document{}
			if text := collapse(sb.String()); text != "" {
				doc.Items = []content.Item{content.Text(text, content.DefaultBlock)}
			}
			return doc
		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Script || a == atom.Style || a == atom.Head {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style || a == atom.Head) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// requireRoot rejects input that carries no html or body element at all.
func requireRoot(raw []byte) error {
	z := html.NewTokenizer(bytes.NewReader(raw))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return fmt.Errorf("failed to tokenize markup: %w", err)
			}
			return fmt.Errorf("document has no html or body element")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Html || a == atom.Body {
				return nil
			}
		}
	}
}

func readHead(root *html.Node, doc *content.Document) {
	if h := find(root, atom.Html); h != nil {
		doc.Lang = attr(h, "xml:lang")
		if doc.Lang == "" {
			doc.Lang = attr(h, "lang")
		}
	}
	head := find(root, atom.Head)
	if head == nil {
		return
	}
	if t := find(head, atom.Title); t != nil {
		doc.Title = collapse(textOf(t))
	}
	for n := range head.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.Link {
			continue
		}
		if strings.EqualFold(attr(n, "rel"), "stylesheet") && attr(n, "href") != "" {
			doc.Stylesheets = append(doc.Stylesheets, attr(n, "href"))
		}
	}
}

type walker struct {
	items []content.Item
	buf   strings.Builder
	block string
}

func (w *walker) walk(n *html.Node, block string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if w.buf.Len() == 0 {
				w.block = block
			}
			w.buf.WriteString(c.Data)
		case html.ElementNode:
			w.element(c, block)
		}
	}
}

func (w *walker) element(n *html.Node, block string) {
	if ignored[n.DataAtom] {
		return
	}
	switch n.DataAtom {
	case atom.Img:
		w.flush()
		if src := attr(n, "src"); src != "" {
			w.items = append(w.items, content.Image(src, attr(n, "alt")))
		}
		return
	case atom.Image:
		// SVG wrapped covers reference their picture through href.
		w.flush()
		if src := attr(n, "href"); src != "" {
			w.items = append(w.items, content.Image(src, attr(n, "alt")))
		}
		return
	case atom.Br:
		w.flush()
		return
	case atom.Svg:
		w.flush()
		w.walkImages(n)
		return
	}
	if !blocks[n.DataAtom] {
		w.walk(n, block)
		return
	}
	w.flush()
	inner := block
	if keptBlocks[n.DataAtom] {
		inner = n.Data
	} else if n.DataAtom == atom.P || n.DataAtom == atom.Li {
		inner = content.DefaultBlock
	}
	w.walk(n, inner)
	w.flush()
}

// walkImages collects only image references from foreign content.
func (w *walker) walkImages(n *html.Node) {
	for c := range n.Descendants() {
		if c.Type == html.ElementNode && c.Data == "image" {
			if src := attr(c, "href"); src != "" {
				w.items = append(w.items, content.Image(src, ""))
			}
		}
	}
}

func (w *walker) flush() {
	text := collapse(w.buf.String())
	w.buf.Reset()
	if text == "" {
		return
	}
	w.items = append(w.items, content.Text(text, w.block))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := range n.Descendants() {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	for c := range n.Descendants() {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
