package capture

import (
	"errors"
	"strings"
	"testing"

	"github.com/rcliao/margin/internal/model"
	"golang.org/x/net/html"
)

const sample = "# Title\n\nfirst para\nline two\n\nsecond para here\n"

func TestEditorCapture(t *testing.T) {
	ed := NewTextEditor(sample)
	if err := ed.SelectText("para here"); err != nil {
		t.Fatalf("select: %v", err)
	}

	res, err := EditorCapturer{Editor: ed, Doc: "notes/A.md"}.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Doc != "notes/A.md" || res.Text != "para here" {
		t.Errorf("unexpected result %+v", res)
	}
	want := model.Position{Start: 37, End: 46, Line: 5, Block: 2}
	if res.Position != want {
		t.Errorf("position: want %+v, got %+v", want, res.Position)
	}
	if sample[res.Position.Start:res.Position.End] != res.Text {
		t.Error("offsets do not address the selected text")
	}
}

// reversed reports a backwards selection and exposes no source.
type reversed struct{}

func (reversed) SelectedText() string { return "two" }
func (reversed) Selection() (Cursor, Cursor, bool) {
	return Cursor{Line: 3, Ch: 8}, Cursor{Line: 3, Ch: 5}, true
}
func (reversed) Offset(c Cursor) int { return 20 + c.Ch }

func TestEditorCaptureBackwardsSelection(t *testing.T) {
	res, err := EditorCapturer{Editor: reversed{}, Doc: "A.md"}.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	want := model.Position{Start: 25, End: 28, Line: 3, Block: -1}
	if res.Position != want {
		t.Errorf("want %+v, got %+v", want, res.Position)
	}
}

func TestEditorCaptureFailures(t *testing.T) {
	blank := NewTextEditor("a   b")
	if err := blank.Select(1, 4); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		c    EditorCapturer
	}{
		{"no document", EditorCapturer{Editor: NewTextEditor("x"), Doc: ""}},
		{"no editor", EditorCapturer{Doc: "A.md"}},
		{"nothing selected", EditorCapturer{Editor: NewTextEditor("text"), Doc: "A.md"}},
		{"whitespace selection", EditorCapturer{Editor: blank, Doc: "A.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.c.Capture()
			if !errors.Is(err, model.ErrCaptureFailed) {
				t.Errorf("expected ErrCaptureFailed, got %v", err)
			}
		})
	}
}

func TestTextEditorCursorRoundTrip(t *testing.T) {
	ed := NewTextEditor(sample)
	for off := 0; off <= len(sample); off++ {
		if got := ed.Offset(ed.CursorAt(off)); got != off {
			t.Fatalf("offset %d round-tripped to %d", off, got)
		}
	}
	if c := ed.CursorAt(9); c != (Cursor{Line: 2, Ch: 0}) {
		t.Errorf("unexpected cursor %+v", c)
	}
	if err := ed.Select(5, 2); err == nil {
		t.Error("expected error for inverted range")
	}
	if err := ed.SelectText("absent"); err == nil {
		t.Error("expected error for missing text")
	}
}

func TestBlocks(t *testing.T) {
	bs := Blocks(sample)
	if len(bs) != 3 {
		t.Fatalf("expected 3 blocks, got %d: %+v", len(bs), bs)
	}
	if sample[bs[1].Start:bs[1].End] != "first para\nline two" {
		t.Errorf("unexpected second block %q", sample[bs[1].Start:bs[1].End])
	}
	if bs[1].StartLine != 2 || bs[1].EndLine != 3 {
		t.Errorf("unexpected lines %+v", bs[1])
	}
}

func TestBlocksKeepFencesWhole(t *testing.T) {
	src := "```\na\n\nb\n```\n\nafter"
	bs := Blocks(src)
	if len(bs) != 2 {
		t.Fatalf("expected 2 blocks, got %+v", bs)
	}
	if got := BlockIndex(src, strings.Index(src, "b")); got != 0 {
		t.Errorf("expected fenced text in block 0, got %d", got)
	}
	if got := BlockIndex(src, strings.Index(src, "after")); got != 1 {
		t.Errorf("expected block 1, got %d", got)
	}
	if got := BlockIndex("", 0); got != -1 {
		t.Errorf("expected -1 for empty source, got %d", got)
	}
}

func parseDoc(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func findText(n *html.Node, data string) *html.Node {
	if n.Type == html.TextNode && n.Data == data {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findText(c, data); f != nil {
			return f
		}
	}
	return nil
}

const renderedSample = `<div data-line="3" data-block="1"><p>hello <em>brave</em> world</p></div>`

func TestRenderedCapture(t *testing.T) {
	root := parseDoc(t, renderedSample)
	brave, world := findText(root, "brave"), findText(root, " world")

	forward := Selection{AnchorNode: brave, AnchorOffset: 0, FocusNode: world, FocusOffset: 4, Text: "brave wor"}
	backward := Selection{AnchorNode: world, AnchorOffset: 4, FocusNode: brave, FocusOffset: 0, Text: "brave wor"}

	for name, sel := range map[string]Selection{"forward": forward, "backward": backward} {
		t.Run(name, func(t *testing.T) {
			res, err := RenderedCapturer{Root: root, Selection: sel, Doc: "A.md"}.Capture()
			if err != nil {
				t.Fatalf("capture: %v", err)
			}
			want := model.Position{Start: 6, End: 15, Line: 3, Block: 1}
			if res.Position != want {
				t.Errorf("want %+v, got %+v", want, res.Position)
			}
		})
	}
}

func TestRenderedCaptureElementAnchor(t *testing.T) {
	root := parseDoc(t, "<p>hello <em>brave</em> world</p>")
	var p *html.Node
	for n := findText(root, "hello "); n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "p" {
			p = n
			break
		}
	}
	res, err := RenderedCapturer{Root: root, Selection: Selection{AnchorNode: p, AnchorOffset: 1, Text: "brave"}, Doc: "A.md"}.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	want := model.Position{Start: 6, End: 11, Line: 0, Block: -1}
	if res.Position != want {
		t.Errorf("want %+v, got %+v", want, res.Position)
	}
}

func TestRenderedCaptureFailures(t *testing.T) {
	root := parseDoc(t, renderedSample)
	brave := findText(root, "brave")
	stray := &html.Node{Type: html.TextNode, Data: "stray"}

	tests := []struct {
		name string
		c    RenderedCapturer
	}{
		{"no document", RenderedCapturer{Root: root, Selection: Selection{AnchorNode: brave, FocusNode: brave, FocusOffset: 5, Text: "brave"}}},
		{"no selection", RenderedCapturer{Root: root, Doc: "A.md"}},
		{"collapsed", RenderedCapturer{Root: root, Doc: "A.md", Selection: Selection{AnchorNode: brave, AnchorOffset: 2, FocusNode: brave, FocusOffset: 2}}},
		{"whitespace", RenderedCapturer{Root: root, Doc: "A.md", Selection: Selection{AnchorNode: brave, FocusNode: brave, FocusOffset: 1, Text: " \n"}}},
		{"outside tree", RenderedCapturer{Root: root, Doc: "A.md", Selection: Selection{AnchorNode: stray, FocusNode: stray, FocusOffset: 3, Text: "str"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.c.Capture(); !errors.Is(err, model.ErrCaptureFailed) {
				t.Errorf("expected ErrCaptureFailed, got %v", err)
			}
		})
	}
}
