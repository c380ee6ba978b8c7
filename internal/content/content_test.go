package content

import "testing"

func TestPayloadRoundTrip(t *testing.T) {
	txt := Text("hello", "")
	if txt.Block != DefaultBlock {
		t.Fatalf("Block = %q, want %q", txt.Block, DefaultBlock)
	}
	if got := txt.WithPayload("안녕").Payload(); got != "안녕" {
		t.Fatalf("Payload() = %q", got)
	}

	img := Image("images/a.jpg", "a cat")
	out := img.WithPayload("고양이")
	if out.Src != "images/a.jpg" {
		t.Fatalf("image src changed: %q", out.Src)
	}
	if out.Alt != "고양이" {
		t.Fatalf("Alt = %q", out.Alt)
	}
	if img.Alt != "a cat" {
		t.Fatalf("original item mutated")
	}
}

func TestImages(t *testing.T) {
	items := []Item{Text("a", "p"), Image("1.png", ""), Text("b", "p"), Image("2.png", "x")}
	got := Images(items)
	if len(got) != 2 || got[0] != "1.png" || got[1] != "2.png" {
		t.Fatalf("Images() = %v", got)
	}
}
