// Package codec converts annotation records to and from the human-editable
// blob format stored next to each annotated document.
//
// A blob is an optional header followed by concatenated records:
//
//	---
//	id: 01J...
//	sourceFile: notes/A.md
//	startOffset: 4
//	endOffset: 17
//	lineNumber: 0
//	block: 0
//	selectedText: the quick fox
//	createdAt: 1767323045678
//	updatedAt: 1767323045678
//	---
//
//	note body, any number of lines
//
// A record starts at a "---" line immediately followed by an "id:" line, so
// Markdown horizontal rules inside a note body are kept as content. A body
// containing a "---" line directly followed by an "id:" line cannot be
// represented and is split on decode.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rcliao/margin/internal/model"
)

// Delimiter opens and closes a metadata block.
const Delimiter = "---"

const (
	keyID           = "id"
	keySourceFile   = "sourceFile"
	keyStartOffset  = "startOffset"
	keyEndOffset    = "endOffset"
	keyLineNumber   = "lineNumber"
	keyBlock        = "block"
	keySelectedText = "selectedText"
	keyCreatedAt    = "createdAt"
	keyUpdatedAt    = "updatedAt"
)

// Header returns the back-link line written above the first record.
func Header(doc string) string {
	return "Annotations for [[" + doc + "]]"
}

// Encode serialises records in order. Metadata values are kept on a single
// line; newlines inside them are collapsed to spaces.
func Encode(records []model.Annotation) string {
	var b strings.Builder
	for _, r := range records {
		writeRecord(&b, r)
	}
	return b.String()
}

// EncodeDocument is Encode preceded by the header for doc.
func EncodeDocument(doc string, records []model.Annotation) string {
	return Header(doc) + "\n\n" + Encode(records)
}

func writeRecord(b *strings.Builder, r model.Annotation) {
	b.WriteString(Delimiter + "\n")
	field(b, keyID, r.ID)
	field(b, keySourceFile, r.SourceFile)
	field(b, keyStartOffset, strconv.Itoa(r.Position.Start))
	field(b, keyEndOffset, strconv.Itoa(r.Position.End))
	field(b, keyLineNumber, strconv.Itoa(r.Position.Line))
	field(b, keyBlock, strconv.Itoa(r.Position.Block))
	field(b, keySelectedText, r.SelectedText)
	field(b, keyCreatedAt, strconv.FormatInt(r.CreatedAt.UnixMilli(), 10))
	field(b, keyUpdatedAt, strconv.FormatInt(r.UpdatedAt.UnixMilli(), 10))
	b.WriteString(Delimiter + "\n\n")
	b.WriteString(r.Content)
	b.WriteString("\n\n")
}

func field(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(model.CollapseNewlines(value))
	b.WriteByte('\n')
}

// BlockError describes one record that could not be decoded.
type BlockError struct {
	Line   int // 1-based line of the opening delimiter
	Reason string
}

// MalformedError lists the blocks skipped by Decode.
type MalformedError struct {
	Blocks []BlockError
}

func (e *MalformedError) Error() string {
	parts := make([]string, 0, len(e.Blocks))
	for _, b := range e.Blocks {
		parts = append(parts, fmt.Sprintf("line %d: %s", b.Line, b.Reason))
	}
	return fmt.Sprintf("%v: %d block(s) skipped (%s)", model.ErrDecodeMalformed, len(e.Blocks), strings.Join(parts, "; "))
}

func (e *MalformedError) Unwrap() error { return model.ErrDecodeMalformed }

// Decode parses a blob. It always returns every record it could recover;
// the error is a *MalformedError when some blocks had to be skipped.
// Text before the first record (the header) is ignored.
func Decode(blob string) ([]model.Annotation, error) {
	lines := strings.Split(strings.ReplaceAll(blob, "\r\n", "\n"), "\n")
	records := []model.Annotation{}
	var bad []BlockError
	seen := map[string]bool{}

	isStart := func(i int) bool {
		return i+1 < len(lines) && lines[i] == Delimiter && strings.HasPrefix(lines[i+1], keyID+":")
	}

	i := 0
	for i < len(lines) && !isStart(i) {
		i++
	}

	for i < len(lines) {
		open := i
		i++

		meta := map[string]string{}
		closed := false
		for i < len(lines) {
			if lines[i] == Delimiter && !isStart(i) {
				closed = true
				i++
				break
			}
			if isStart(i) {
				break
			}
			if k, v, ok := strings.Cut(lines[i], ":"); ok {
				meta[strings.TrimSpace(k)] = strings.TrimPrefix(v, " ")
			}
			i++
		}
		if !closed {
			bad = append(bad, BlockError{Line: open + 1, Reason: "unterminated metadata"})
			continue
		}

		start := i
		for i < len(lines) && !isStart(i) {
			i++
		}
		content := strings.TrimSpace(strings.Join(lines[start:i], "\n"))

		rec, err := fromMeta(meta, content)
		if err != nil {
			bad = append(bad, BlockError{Line: open + 1, Reason: err.Error()})
			continue
		}
		if seen[rec.ID] {
			bad = append(bad, BlockError{Line: open + 1, Reason: "duplicate id " + rec.ID})
			continue
		}
		seen[rec.ID] = true
		records = append(records, rec)
	}

	if len(bad) > 0 {
		return records, &MalformedError{Blocks: bad}
	}
	return records, nil
}

func fromMeta(meta map[string]string, content string) (model.Annotation, error) {
	var r model.Annotation
	r.ID = strings.TrimSpace(meta[keyID])
	if r.ID == "" {
		return r, fmt.Errorf("missing %s", keyID)
	}
	r.SourceFile = strings.TrimSpace(meta[keySourceFile])
	if r.SourceFile == "" {
		return r, fmt.Errorf("missing %s", keySourceFile)
	}
	r.SelectedText = meta[keySelectedText]
	if strings.TrimSpace(r.SelectedText) == "" {
		return r, fmt.Errorf("missing %s", keySelectedText)
	}
	r.Content = content

	var err error
	if r.Position.Start, err = intField(meta, keyStartOffset, 0); err != nil {
		return r, err
	}
	if r.Position.End, err = intField(meta, keyEndOffset, r.Position.Start); err != nil {
		return r, err
	}
	if r.Position.Line, err = intField(meta, keyLineNumber, 0); err != nil {
		return r, err
	}
	if r.Position.Block, err = intField(meta, keyBlock, -1); err != nil {
		return r, err
	}

	created, err := millisField(meta, keyCreatedAt)
	if err != nil {
		return r, err
	}
	updated, err := millisField(meta, keyUpdatedAt)
	if err != nil {
		return r, err
	}
	if updated < created {
		return r, fmt.Errorf("%s before %s", keyUpdatedAt, keyCreatedAt)
	}
	r.CreatedAt = model.FromMillis(created)
	r.UpdatedAt = model.FromMillis(updated)
	return r, nil
}

func intField(meta map[string]string, key string, def int) (int, error) {
	v, ok := meta[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", key, v)
	}
	return n, nil
}

func millisField(meta map[string]string, key string) (int64, error) {
	v, ok := meta[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", key, v)
	}
	return n, nil
}
