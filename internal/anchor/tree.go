package anchor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// verbatim elements hold literal text that is never marked.
var verbatim = map[atom.Atom]bool{
	atom.Code:     true,
	atom.Pre:      true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Textarea: true,
	atom.Kbd:      true,
	atom.Samp:     true,
}

// IsVerbatim reports whether n is a code-like element whose text is excluded
// from anchoring.
func IsVerbatim(n *html.Node) bool {
	return n.Type == html.ElementNode && verbatim[n.DataAtom]
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// markerID returns the annotation id carried by n, or "" if n is not a marker.
func markerID(n *html.Node) string {
	if n.Type != html.ElementNode || n.DataAtom != atom.Mark {
		return ""
	}
	return getAttr(n, IDAttr)
}

// FindMarker returns the marker element for id, or nil.
func FindMarker(root *html.Node, id string) *html.Node {
	if root == nil || id == "" {
		return nil
	}
	if markerID(root) == id {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if m := FindMarker(c, id); m != nil {
			return m
		}
	}
	return nil
}

// Markers returns the ids of all markers in document order.
func Markers(root *html.Node) []string {
	var ids []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if id := markerID(n); id != "" {
			ids = append(ids, id)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return ids
}

// TextContent concatenates every text node under root in document order.
func TextContent(root *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return sb.String()
}

// mergeText joins adjacent text children of parent.
func mergeText(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			parent.RemoveChild(next)
			continue
		}
		c = next
	}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
