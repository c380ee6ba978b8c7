package content

import "fmt"

// Kind identifies the variant held by an Item.
type Kind int

const (
	KindText Kind = iota
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultBlock is the element used for text items with no recorded block.
const DefaultBlock = "p"

// Item is one translatable or preservable element of a document, in reading order.
// Only the fields belonging to Kind are meaningful.
type Item struct {
	Kind Kind

	// Text fields.
	Text  string
	Block string

	// Image fields.
	Src string
	Alt string
}

// Text returns a text item wrapped in the given block element.
func Text(text, block string) Item {
	if block == "" {
		block = DefaultBlock
	}
	return Item{Kind: KindText, Text: text, Block: block}
}

// Image returns an image item. The src is kept byte for byte.
func Image(src, alt string) Item {
	return Item{Kind: KindImage, Src: src, Alt: alt}
}

// Payload returns the string that is sent for translation.
func (it Item) Payload() string {
	switch it.Kind {
	case KindText:
		return it.Text
	case KindImage:
		return it.Alt
	default:
		return ""
	}
}

// WithPayload returns a copy of the item carrying translated text.
// Image sources never change.
func (it Item) WithPayload(s string) Item {
	switch it.Kind {
	case KindText:
		it.Text = s
	case KindImage:
		it.Alt = s
	}
	return it
}

// Document is the segmented form of one XHTML member.
type Document struct {
	Title       string
	Lang        string
	Stylesheets []string
	Items       []Item
}

// Images returns the image sources of items in order.
func Images(items []Item) []string {
	var srcs []string
	for _, it := range items {
		if it.Kind == KindImage {
			srcs = append(srcs, it.Src)
		}
	}
	return srcs
}
