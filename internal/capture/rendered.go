package capture

import (
	"strconv"
	"strings"

	"github.com/rcliao/margin/internal/model"
	"golang.org/x/net/html"
)

const (
	// LineAttr and BlockAttr are structural hints the renderer stamps on
	// top-level blocks.
	LineAttr  = "data-line"
	BlockAttr = "data-block"
)

// Selection is a DOM-style selection over a rendered tree. A node offset is
// a byte offset for text nodes and a child index for elements.
type Selection struct {
	AnchorNode   *html.Node
	AnchorOffset int
	FocusNode    *html.Node
	FocusOffset  int
	Text         string
}

// Collapsed reports whether the selection is a caret.
func (s Selection) Collapsed() bool {
	if s.FocusNode == nil {
		return s.Text == ""
	}
	return s.AnchorNode == s.FocusNode && s.AnchorOffset == s.FocusOffset
}

// RenderedCapturer captures from a read-only rendered view. Offsets are
// approximate: they count rendered text, not source bytes.
type RenderedCapturer struct {
	Root      *html.Node
	Selection Selection
	Doc       string
}

func (c RenderedCapturer) Capture() (Result, error) {
	sel := c.Selection
	switch {
	case c.Doc == "":
		return Result{}, failed("no source document")
	case c.Root == nil || sel.AnchorNode == nil:
		return Result{}, failed("no active selection")
	case sel.Collapsed():
		return Result{}, failed("selection is collapsed")
	case strings.TrimSpace(sel.Text) == "":
		return Result{}, failed("selection is empty or whitespace")
	}

	start, ok := textOffset(c.Root, sel.AnchorNode, sel.AnchorOffset)
	if !ok {
		return Result{}, failed("selection is outside the document")
	}
	startNode := sel.AnchorNode
	end := start + len(sel.Text)
	if sel.FocusNode != nil {
		if focus, ok := textOffset(c.Root, sel.FocusNode, sel.FocusOffset); ok {
			if focus < start {
				start, end = focus, start
				startNode = sel.FocusNode
			} else {
				end = focus
			}
		}
	}

	pos := model.Position{
		Start: start,
		End:   end,
		Line:  ancestorInt(startNode, LineAttr, 0),
		Block: ancestorInt(startNode, BlockAttr, -1),
	}
	return Result{Doc: c.Doc, Text: sel.Text, Position: pos}, nil
}

// textOffset counts rendered text bytes before (node, offset). ok is false
// when node is not under root.
func textOffset(root, node *html.Node, offset int) (int, bool) {
	count := 0
	found := false
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n == node {
			found = true
			if n.Type == html.TextNode {
				count += clamp(offset, 0, len(n.Data))
				return true
			}
			i := 0
			for c := n.FirstChild; c != nil && i < offset; c = c.NextSibling {
				count += len(textOf(c))
				i++
			}
			return true
		}
		if n.Type == html.TextNode {
			count += len(n.Data)
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return count, found
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

// ancestorInt reads an integer attribute from n or its nearest ancestor
// carrying it.
func ancestorInt(n *html.Node, key string, def int) int {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			if a.Key == key {
				if v, err := strconv.Atoi(a.Val); err == nil {
					return v
				}
			}
		}
	}
	return def
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
