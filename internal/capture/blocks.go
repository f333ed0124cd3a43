package capture

import "strings"

// Block is a top-level markdown block: a paragraph, heading, list run or
// fenced code region. Offsets are bytes into the source, lines are zero-based.
type Block struct {
	Start     int
	End       int
	StartLine int
	EndLine   int
}

// Blocks splits markdown source on blank lines and heading lines. Blank lines
// inside a fenced code block do not split it.
func Blocks(src string) []Block {
	var blocks []Block
	cur := Block{Start: -1}
	inFence := false

	flush := func() {
		if cur.Start >= 0 {
			blocks = append(blocks, cur)
		}
		cur = Block{Start: -1}
	}

	offset := 0
	for lineNum, line := range strings.Split(src, "\n") {
		lineEnd := offset + len(line)
		trimmed := strings.TrimSpace(line)

		fence := strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
		switch {
		case inFence:
			if fence {
				inFence = false
			}
		case trimmed == "":
			flush()
			offset = lineEnd + 1
			continue
		case strings.HasPrefix(trimmed, "#"):
			flush()
		case fence:
			flush()
			inFence = true
		}

		if cur.Start < 0 {
			cur.Start, cur.StartLine = offset, lineNum
		}
		cur.End, cur.EndLine = lineEnd, lineNum
		if strings.HasPrefix(trimmed, "#") && !inFence {
			flush()
		}
		offset = lineEnd + 1
	}
	flush()
	return blocks
}

// BlockIndex returns the index of the block containing offset. An offset in
// the gap between blocks belongs to the preceding block; before the first
// block, or in an empty source, it is -1.
func BlockIndex(src string, offset int) int {
	idx := -1
	for i, b := range Blocks(src) {
		if b.Start > offset {
			break
		}
		idx = i
	}
	return idx
}
