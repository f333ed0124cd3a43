// Package render turns markdown documents into HTML trees the anchor engine
// can mark, and serialises marked trees back to HTML.
package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcliao/margin/internal/capture"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmtext "github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithASTTransformers(util.Prioritized(blockHints{}, 100)),
	),
)

// blockHints stamps every top-level block with its index and source line so
// selections made in the rendered view carry structural hints.
type blockHints struct{}

func (blockHints) Transform(doc *ast.Document, reader gmtext.Reader, pc parser.Context) {
	src := reader.Source()
	i := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		n.SetAttributeString(capture.BlockAttr, []byte(strconv.Itoa(i)))
		if start, ok := firstSegment(n); ok {
			line := bytes.Count(src[:start], []byte("\n"))
			n.SetAttributeString(capture.LineAttr, []byte(strconv.Itoa(line)))
		}
		i++
	}
}

// firstSegment finds the source start of n's first line, looking into
// container blocks that carry no lines themselves.
func firstSegment(n ast.Node) (int, bool) {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return n.Lines().At(0).Start, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if s, ok := firstSegment(c); ok {
			return s, true
		}
	}
	return 0, false
}

// Markdown renders src and parses the result into a document tree.
func Markdown(src []byte) (*html.Node, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	root, err := html.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}
	return root, nil
}

// Body returns the <body> element of a parsed document, or nil.
func Body(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && root.DataAtom == atom.Body {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if b := Body(c); b != nil {
			return b
		}
	}
	return nil
}

// HTML serialises the children of root's body, or of root itself when it
// has no body.
func HTML(root *html.Node) (string, error) {
	parent := Body(root)
	if parent == nil {
		parent = root
	}
	var sb strings.Builder
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", fmt.Errorf("render html: %w", err)
		}
	}
	return sb.String(), nil
}

const pageStyle = `mark.annotation-highlight { border-radius: 2px; }
mark.annotation-highlight.is-active { outline: 1px solid #c49000; }
aside.annotations { border-top: 1px solid #ddd; margin-top: 2em; font-size: 0.9em; }`

// Page wraps the rendered body of root in a standalone HTML page. notes is
// appended as an aside when non-empty.
func Page(title string, root *html.Node, notes []Note) (string, error) {
	body, err := HTML(root)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	sb.WriteString(html.EscapeString(title))
	sb.WriteString("</title><style>")
	sb.WriteString(pageStyle)
	sb.WriteString("</style></head><body>\n")
	sb.WriteString(body)
	if len(notes) > 0 {
		sb.WriteString("\n<aside class=\"annotations\"><ol>\n")
		for _, n := range notes {
			cls := ""
			if !n.Marked {
				cls = ` class="unanchored"`
			}
			fmt.Fprintf(&sb, "<li id=\"note-%s\"%s><q>%s</q> %s</li>\n",
				html.EscapeString(n.ID), cls, html.EscapeString(n.Text), html.EscapeString(n.Content))
		}
		sb.WriteString("</ol></aside>")
	}
	sb.WriteString("\n</body></html>\n")
	return sb.String(), nil
}

// Note is one entry of a page's annotation list.
type Note struct {
	ID      string
	Text    string
	Content string
	Marked  bool
}
