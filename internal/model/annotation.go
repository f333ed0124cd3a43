// Package model defines the annotation record and its construction helpers.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Position locates a selection in the authoring representation of a document.
// Offsets are byte offsets into the source text.
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Line  int `json:"line"`
	Block int `json:"block"` // paragraph index hint, -1 when unknown
}

// Annotation is a note attached to a span of text in a document.
type Annotation struct {
	ID           string    `json:"id"`
	SourceFile   string    `json:"source_file"`
	SelectedText string    `json:"selected_text"`
	Position     Position  `json:"position"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Now is the clock used for timestamps. Tests may replace it.
var Now = time.Now

// NewID returns a fresh lexically sortable id made of a millisecond
// timestamp and random entropy.
func NewID() string {
	return ulid.Make().String()
}

// New builds a record for a fresh selection. Newlines in the selected text
// are collapsed to spaces because the blob format keeps metadata on one line.
func New(doc, selectedText string, pos Position, content string) (*Annotation, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, fmt.Errorf("new annotation: %w: no source document", ErrCaptureFailed)
	}
	text := CollapseNewlines(selectedText)
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySelection
	}
	content = NormalizeContent(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if pos.Start < 0 || pos.Line < 0 {
		return nil, fmt.Errorf("new annotation: negative position %+v", pos)
	}
	if pos.End < pos.Start {
		pos.End = pos.Start + len(selectedText)
	}

	now := millis(Now())
	return &Annotation{
		ID:           NewID(),
		SourceFile:   doc,
		SelectedText: text,
		Position:     pos,
		Content:      content,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Update returns a copy of a with new content and a bumped UpdatedAt.
// It does not persist anything.
func Update(a Annotation, content string) (Annotation, error) {
	content = NormalizeContent(content)
	if content == "" {
		return a, ErrEmptyContent
	}
	a.Content = content
	return Touch(a), nil
}

// Touch returns a copy of a with UpdatedAt moved strictly forward.
func Touch(a Annotation) Annotation {
	now := millis(Now())
	if !now.After(a.UpdatedAt) {
		now = a.UpdatedAt.Add(time.Millisecond)
	}
	a.UpdatedAt = now
	return a
}

// Validate reports whether a can be persisted.
func (a Annotation) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("annotation: missing id")
	case a.SourceFile == "":
		return fmt.Errorf("annotation %s: missing source file", a.ID)
	case strings.TrimSpace(a.SelectedText) == "":
		return fmt.Errorf("annotation %s: %w", a.ID, ErrEmptySelection)
	case a.UpdatedAt.Before(a.CreatedAt):
		return fmt.Errorf("annotation %s: updated before created", a.ID)
	}
	return nil
}

// Preview returns the selected text shortened to n runes for list views.
func (a Annotation) Preview(n int) string {
	r := []rune(a.SelectedText)
	if n <= 0 || len(r) <= n {
		return a.SelectedText
	}
	return string(r[:n]) + "..."
}

// Normalize returns a in the form the blob format stores it: metadata on
// one line, content trimmed with "\n" line endings.
func Normalize(a Annotation) Annotation {
	a.SourceFile = strings.TrimSpace(CollapseNewlines(a.SourceFile))
	a.SelectedText = CollapseNewlines(a.SelectedText)
	a.Content = NormalizeContent(a.Content)
	a.CreatedAt = millis(a.CreatedAt)
	a.UpdatedAt = millis(a.UpdatedAt)
	return a
}

// NormalizeContent converts line endings to "\n" and trims surrounding space.
func NormalizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// CollapseNewlines replaces every line break with a single space.
func CollapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func millis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli())
}

// FromMillis converts an epoch millisecond stamp to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// IndexOf returns the index of the record with the given id, or -1.
func IndexOf(list []Annotation, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
