package capture

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/margin/internal/model"
)

// Cursor is a line/column address in an editor. Both are zero-based;
// Ch counts bytes.
type Cursor struct {
	Line int
	Ch   int
}

// Editor is the host's editable-text surface.
type Editor interface {
	SelectedText() string
	// Selection returns the selection bounds; ok is false when nothing is selected.
	Selection() (from, to Cursor, ok bool)
	// Offset converts a cursor to a byte offset in the source text.
	Offset(c Cursor) int
}

// Sourcer is implemented by editors that expose their full text, which lets
// the capturer add a paragraph hint.
type Sourcer interface {
	Source() string
}

// EditorCapturer captures exact positions from an Editor.
type EditorCapturer struct {
	Editor Editor
	Doc    string
}

func (c EditorCapturer) Capture() (Result, error) {
	if c.Doc == "" {
		return Result{}, failed("no source document")
	}
	if c.Editor == nil {
		return Result{}, failed("no editor")
	}
	from, to, ok := c.Editor.Selection()
	if !ok {
		return Result{}, failed("no active selection")
	}
	text := c.Editor.SelectedText()
	if strings.TrimSpace(text) == "" {
		return Result{}, failed("selection is empty or whitespace")
	}

	start, end := c.Editor.Offset(from), c.Editor.Offset(to)
	if end < start {
		start, end = end, start
		from = to
	}
	pos := model.Position{Start: start, End: end, Line: from.Line, Block: -1}
	if s, ok := c.Editor.(Sourcer); ok {
		pos.Block = BlockIndex(s.Source(), start)
	}
	return Result{Doc: c.Doc, Text: text, Position: pos}, nil
}

// TextEditor is an in-process Editor over a source string, used when the
// host is a plain file rather than an interactive editor.
type TextEditor struct {
	src        string
	lineStarts []int
	from, to   int
	selected   bool
}

// NewTextEditor creates an editor over src with nothing selected.
func NewTextEditor(src string) *TextEditor {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &TextEditor{src: src, lineStarts: starts}
}

// Select selects the byte range [from, to).
func (e *TextEditor) Select(from, to int) error {
	if from < 0 || to > len(e.src) || from > to {
		return fmt.Errorf("selection [%d, %d) out of range 0..%d", from, to, len(e.src))
	}
	e.from, e.to, e.selected = from, to, true
	return nil
}

// SelectText selects the first occurrence of needle.
func (e *TextEditor) SelectText(needle string) error {
	if needle == "" {
		return fmt.Errorf("empty selection text")
	}
	i := strings.Index(e.src, needle)
	if i < 0 {
		return fmt.Errorf("%q not found in document", needle)
	}
	return e.Select(i, i+len(needle))
}

// Clear drops the selection.
func (e *TextEditor) Clear() { e.selected = false }

func (e *TextEditor) SelectedText() string {
	if !e.selected {
		return ""
	}
	return e.src[e.from:e.to]
}

func (e *TextEditor) Selection() (Cursor, Cursor, bool) {
	if !e.selected || e.from == e.to {
		return Cursor{}, Cursor{}, false
	}
	return e.CursorAt(e.from), e.CursorAt(e.to), true
}

func (e *TextEditor) Offset(c Cursor) int {
	if c.Line < 0 {
		return 0
	}
	if c.Line >= len(e.lineStarts) {
		return len(e.src)
	}
	off := e.lineStarts[c.Line] + c.Ch
	if off > len(e.src) {
		off = len(e.src)
	}
	return off
}

// CursorAt converts a byte offset to a cursor.
func (e *TextEditor) CursorAt(offset int) Cursor {
	if offset < 0 {
		offset = 0
	}
	if offset > len(e.src) {
		offset = len(e.src)
	}
	line := sort.Search(len(e.lineStarts), func(i int) bool { return e.lineStarts[i] > offset }) - 1
	return Cursor{Line: line, Ch: offset - e.lineStarts[line]}
}

func (e *TextEditor) Source() string { return e.src }
