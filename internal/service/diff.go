package service

import (
	"fmt"
	"strings"
)

// diffContext is the number of unchanged lines shown around each hunk.
const diffContext = 3

// UnifiedDiff produces a unified diff between two texts, line based. Good
// enough for tool output; it is not meant to be byte-exact with GNU diff.
func UnifiedDiff(nameA, nameB, a, b string) string {
	if a == b {
		return ""
	}

	linesA := splitLines(a)
	linesB := splitLines(b)
	ops := diffOps(linesA, linesB)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", nameA, nameB)

	for _, h := range hunks(ops) {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.startA+1, h.lenA, h.startB+1, h.lenB)
		for _, op := range ops[h.first:h.last] {
			switch op.kind {
			case opEqual:
				sb.WriteString(" " + op.line + "\n")
			case opDelete:
				sb.WriteString("-" + op.line + "\n")
			case opInsert:
				sb.WriteString("+" + op.line + "\n")
			}
		}
	}
	return sb.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

const (
	opEqual = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind int
	line string
}

// diffOps computes an edit script via LCS over lines.
func diffOps(a, b []string) []diffOp {
	// lcs[i][j] = length of LCS of a[i:] and b[j:]
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{opEqual, a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, diffOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		ops = append(ops, diffOp{opDelete, a[i]})
	}
	for ; j < len(b); j++ {
		ops = append(ops, diffOp{opInsert, b[j]})
	}
	return ops
}

type hunk struct {
	first, last    int // op index range
	startA, startB int // 0-based line starts
	lenA, lenB     int
}

// hunks groups the edit script into context-limited hunks.
func hunks(ops []diffOp) []hunk {
	var out []hunk
	lineA, lineB := 0, 0
	i := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			lineA++
			lineB++
			i++
			continue
		}

		// Found a change; extend backwards for context.
		first := i
		ctx := 0
		for first > 0 && ops[first-1].kind == opEqual && ctx < diffContext {
			first--
			ctx++
		}
		startA := lineA - ctx
		startB := lineB - ctx

		// Walk forward, merging changes separated by <= 2*context equal lines.
		last := i
		equalRun := 0
		j := i
		for j < len(ops) {
			if ops[j].kind == opEqual {
				equalRun++
				if equalRun > 2*diffContext {
					break
				}
			} else {
				equalRun = 0
				last = j + 1
			}
			j++
		}
		// Trim trailing context to at most diffContext lines.
		end := last
		ctx = 0
		for end < len(ops) && ops[end].kind == opEqual && ctx < diffContext {
			end++
			ctx++
		}

		lenA, lenB := 0, 0
		for _, op := range ops[first:end] {
			if op.kind != opInsert {
				lenA++
			}
			if op.kind != opDelete {
				lenB++
			}
		}
		out = append(out, hunk{first: first, last: end, startA: startA, startB: startB, lenA: lenA, lenB: lenB})

		// Advance line counters over the consumed ops.
		for _, op := range ops[i:end] {
			if op.kind != opInsert {
				lineA++
			}
			if op.kind != opDelete {
				lineB++
			}
		}
		i = end
	}
	return out
}
