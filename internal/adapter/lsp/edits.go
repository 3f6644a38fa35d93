package lsp

import (
	"sort"
	"strings"

	lspdomain "github.com/tracefold/workbench/internal/domain/lsp"
)

// ApplyEdits applies range-based text edits to content and returns the new
// text. Edits address the original document: they are applied back-to-front
// (sorted descending by start position) so earlier replacements never shift
// the coordinates of later ones. An empty edit list returns content unchanged.
func ApplyEdits(content string, edits []lspdomain.TextEdit) string {
	if len(edits) == 0 {
		return content
	}

	sorted := make([]lspdomain.TextEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})

	starts := lineStarts(content)
	for _, edit := range sorted {
		start := offsetAt(content, starts, edit.Range.Start)
		end := offsetAt(content, starts, edit.Range.End)
		if end < start {
			end = start
		}
		content = content[:start] + edit.NewText + content[end:]
	}
	return content
}

// lineStarts returns the byte offset of the first character of each line.
func lineStarts(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// offsetAt converts a position to a byte offset. Character counts UTF-16
// code units per the protocol, not bytes; positions past the end of a line
// or of the document clamp.
func offsetAt(content string, starts []int, pos lspdomain.Position) int {
	if pos.Line >= len(starts) {
		return len(content)
	}
	lineStart := starts[pos.Line]
	lineEnd := len(content)
	if pos.Line+1 < len(starts) {
		lineEnd = starts[pos.Line+1] - 1 // exclude the newline
	}
	return lineStart + utf16ToByteOffset(content[lineStart:lineEnd], pos.Character)
}

// utf16ToByteOffset converts a UTF-16 code unit offset within line to a byte
// offset, clamping offsets past the end of the line.
func utf16ToByteOffset(line string, off int) int {
	if off <= 0 {
		return 0
	}
	units := 0
	for i, r := range line {
		if units >= off {
			return i
		}
		if r >= 0x10000 {
			units += 2 // surrogate pair
		} else {
			units++
		}
	}
	return len(line)
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	units := 0
	for _, r := range s {
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return units
}

// FullDocumentRange returns a range covering all of content, used when an
// operation needs a whole-document replacement edit.
func FullDocumentRange(content string) lspdomain.Range {
	lines := strings.Split(content, "\n")
	last := len(lines) - 1
	return lspdomain.Range{
		Start: lspdomain.Position{Line: 0, Character: 0},
		End:   lspdomain.Position{Line: last, Character: utf16Len(lines[last])},
	}
}
