// Package anchor re-locates annotated spans inside a freshly rendered HTML
// tree and wraps them in marker elements.
//
// Every render pass is treated as a new problem: nothing is remembered
// between trees, marks are re-derived from the record text alone. Matching
// happens per text node (leaf), so a selection spanning several inline
// elements is not found.
package anchor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rcliao/margin/internal/model"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// IDAttr carries the annotation id on a marker element.
	IDAttr = "data-annotation-id"
	// MarkerClass is set on every marker.
	MarkerClass = "annotation-highlight"
	// ActiveClass is added to the marker of the focused annotation.
	ActiveClass = "is-active"
)

// Style is the presentation applied to a marker.
type Style struct {
	Color  string
	Active bool
}

func (s Style) class() string {
	if s.Active {
		return MarkerClass + " " + ActiveClass
	}
	return MarkerClass
}

func (s Style) css() string {
	if s.Color == "" {
		return ""
	}
	return "background-color: " + s.Color
}

// Outcome is the result of marking one record.
type Outcome int

const (
	NotFound Outcome = iota
	Marked
	AlreadyMarked
	// Collided: the first occurrence lies inside another record's marker.
	Collided
	// Rejected: the record has no usable selected text.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Marked:
		return "marked"
	case AlreadyMarked:
		return "already-marked"
	case Collided:
		return "collided"
	case Rejected:
		return "rejected"
	default:
		return "not-found"
	}
}

// Stats counts BulkMark outcomes.
type Stats struct {
	Marked   int `json:"marked"`
	Already  int `json:"already"`
	NotFound int `json:"not_found"`
	Collided int `json:"collided"`
	Rejected int `json:"rejected"`
}

// Skipped is the number of records left unmarked.
func (s Stats) Skipped() int { return s.NotFound + s.Collided + s.Rejected }

// Options configures an Engine.
type Options struct {
	// PreferPosition picks, among exact matches, the one whose rendered
	// offset is closest to the record's stored start offset instead of the
	// first one in document order.
	PreferPosition bool
	Logger         *zap.Logger
}

// Engine marks, unmarks and restyles annotation spans. It holds no per-tree
// state and is safe for concurrent use on different trees.
type Engine struct {
	preferPosition bool
	log            *zap.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{preferPosition: opts.PreferPosition, log: log.Named("anchor")}
}

// leaf is a text node eligible for matching.
type leaf struct {
	node    *html.Node
	offset  int    // bytes of rendered text preceding this node
	claimed string // id of the enclosing marker, if any
}

// leaves collects text nodes in pre-order. Text inside verbatim elements is
// counted toward offsets but never returned.
func leaves(root *html.Node) []leaf {
	var out []leaf
	offset := 0
	var walk func(n *html.Node, claimed string, skip bool)
	walk = func(n *html.Node, claimed string, skip bool) {
		switch {
		case n.Type == html.TextNode:
			if !skip {
				out = append(out, leaf{node: n, offset: offset, claimed: claimed})
			}
			offset += len(n.Data)
			return
		case IsVerbatim(n):
			skip = true
		default:
			if id := markerID(n); id != "" {
				claimed = id
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, claimed, skip)
		}
	}
	walk(root, "", false)
	return out
}

// Match is a located span inside a single text node.
type Match struct {
	Node    *html.Node
	Start   int // byte range within Node.Data
	End     int
	Offset  int    // rendered offset of Start
	Claimed string // marker id enclosing Node, if any
	Loose   bool   // found by whitespace-insensitive comparison
}

// Locate finds text in the tree without modifying it. hint is a rendered
// offset used only when the engine prefers positions; pass -1 for none.
func (e *Engine) Locate(root *html.Node, text string, hint int) (Match, bool) {
	if root == nil || strings.TrimSpace(text) == "" {
		return Match{}, false
	}
	ls := leaves(root)
	if m, ok := e.locateExact(ls, text, hint); ok {
		return m, true
	}
	return locateLoose(ls, text)
}

func (e *Engine) locateExact(ls []leaf, needle string, hint int) (Match, bool) {
	if !e.preferPosition || hint < 0 {
		for _, l := range ls {
			if i := strings.Index(l.node.Data, needle); i >= 0 {
				return Match{Node: l.node, Start: i, End: i + len(needle), Offset: l.offset + i, Claimed: l.claimed}, true
			}
		}
		return Match{}, false
	}

	best, found := Match{}, false
	bestDist := 0
	for _, l := range ls {
		if l.claimed != "" {
			continue
		}
		for from := 0; from <= len(l.node.Data); {
			i := strings.Index(l.node.Data[from:], needle)
			if i < 0 {
				break
			}
			at := from + i
			dist := abs(l.offset + at - hint)
			if !found || dist < bestDist {
				best = Match{Node: l.node, Start: at, End: at + len(needle), Offset: l.offset + at}
				bestDist, found = dist, true
			}
			from = at + 1
		}
	}
	return best, found
}

// locateLoose compares with all whitespace removed from both sides, then maps
// the hit back to byte bounds in the original text.
func locateLoose(ls []leaf, needle string) (Match, bool) {
	cn, _ := collapse(needle)
	if cn == "" {
		return Match{}, false
	}
	for _, l := range ls {
		ch, idx := collapse(l.node.Data)
		ci := strings.Index(ch, cn)
		if ci < 0 {
			continue
		}
		start := idx[ci]
		end := idx[ci+len(cn)-1] + 1
		return Match{Node: l.node, Start: start, End: end, Offset: l.offset + start, Claimed: l.claimed, Loose: true}, true
	}
	return Match{}, false
}

// collapse drops whitespace runes. idx[i] is the byte offset in s of byte i
// of the result.
func collapse(s string) (string, []int) {
	var b strings.Builder
	idx := make([]int, 0, len(s))
	for i := 0; i < len(s); {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !unicode.IsSpace(r) {
			b.WriteString(s[i : i+w])
			for k := 0; k < w; k++ {
				idx = append(idx, i+k)
			}
		}
		i += w
	}
	return b.String(), idx
}

// Mark wraps the first occurrence of rec.SelectedText in a marker carrying
// rec.ID. Marking an already marked record changes nothing.
func (e *Engine) Mark(root *html.Node, rec model.Annotation, style Style) Outcome {
	if root == nil {
		return NotFound
	}
	if FindMarker(root, rec.ID) != nil {
		return AlreadyMarked
	}
	if strings.TrimSpace(rec.SelectedText) == "" {
		return Rejected
	}

	hint := -1
	if e.preferPosition {
		hint = rec.Position.Start
	}
	m, ok := e.Locate(root, rec.SelectedText, hint)
	if !ok {
		e.log.Debug("anchor not found", zap.String("id", rec.ID), zap.String("text", rec.Preview(40)))
		return NotFound
	}
	if m.Claimed != "" {
		e.log.Debug("anchor collides with another marker",
			zap.String("id", rec.ID), zap.String("owner", m.Claimed))
		return Collided
	}

	wrap(m, rec.ID, style)
	return Marked
}

// wrap splits the matched text node into prefix, marker and suffix.
func wrap(m Match, id string, style Style) {
	n := m.Node
	parent := n.Parent
	text := n.Data

	mark := &html.Node{Type: html.ElementNode, DataAtom: atom.Mark, Data: "mark"}
	setAttr(mark, "class", style.class())
	setAttr(mark, IDAttr, id)
	if css := style.css(); css != "" {
		setAttr(mark, "style", css)
	}
	mark.AppendChild(textNode(text[m.Start:m.End]))

	if m.Start > 0 {
		parent.InsertBefore(textNode(text[:m.Start]), n)
	}
	parent.InsertBefore(mark, n)
	if m.End < len(text) {
		parent.InsertBefore(textNode(text[m.End:]), n)
	}
	parent.RemoveChild(n)
}

// Unmark removes the marker for id, keeping its text, and merges the text
// runs it split. Returns false when no marker exists.
func (e *Engine) Unmark(root *html.Node, id string) bool {
	removed := false
	for m := FindMarker(root, id); m != nil; m = FindMarker(root, id) {
		parent := m.Parent
		for c := m.FirstChild; c != nil; {
			next := c.NextSibling
			m.RemoveChild(c)
			parent.InsertBefore(c, m)
			c = next
		}
		parent.RemoveChild(m)
		mergeText(parent)
		removed = true
	}
	return removed
}

// UpdateStyle restyles the marker for id in place.
func (e *Engine) UpdateStyle(root *html.Node, id string, style Style) bool {
	m := FindMarker(root, id)
	if m == nil {
		return false
	}
	setAttr(m, "class", style.class())
	if css := style.css(); css != "" {
		setAttr(m, "style", css)
	} else {
		removeAttr(m, "style")
	}
	return true
}

// BulkMark marks every record independently and counts the outcomes. Callers
// must not assume every record gets marked.
func (e *Engine) BulkMark(root *html.Node, recs []model.Annotation, style Style) Stats {
	var st Stats
	for _, r := range recs {
		switch e.Mark(root, r, style) {
		case Marked:
			st.Marked++
		case AlreadyMarked:
			st.Already++
		case Collided:
			st.Collided++
		case Rejected:
			st.Rejected++
		default:
			st.NotFound++
		}
	}
	e.log.Debug("bulk mark", zap.Int("records", len(recs)), zap.Int("marked", st.Marked), zap.Int("skipped", st.Skipped()))
	return st
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
