package vcs

import "strings"

// DiffKind classifies a line in a diff.
type DiffKind int

const (
	DiffSame DiffKind = iota
	DiffRemoved
	DiffAdded
)

// DiffLine is one line of a line-oriented diff.
type DiffLine struct {
	Kind DiffKind
	Text string
}

// splitLines splits text into lines without keeping terminators. CRLF input
// is tolerated; the trailing empty element after a final newline is dropped.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// normalizeLines strips trailing spaces and tabs from every line and drops
// trailing blank lines, so editor whitespace churn does not register as a
// change.
func normalizeLines(text string) []string {
	lines := splitLines(text)
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Changed reports whether two contents differ in anything other than
// trailing whitespace. This is the status rule: whitespace-only churn is
// not a change.
func Changed(oldText, newText string) bool {
	a := normalizeLines(oldText)
	b := normalizeLines(newText)
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

// Diff computes a line-oriented diff between two contents using a longest
// common subsequence over the raw lines. Removed lines come before added
// lines within a changed region.
func Diff(oldText, newText string) []DiffLine {
	a := splitLines(oldText)
	b := splitLines(newText)

	// LCS length table; file contents here are small enough that the
	// quadratic table is not a concern.
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []DiffLine
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, DiffLine{Kind: DiffSame, Text: a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			out = append(out, DiffLine{Kind: DiffRemoved, Text: a[i]})
			i++
		default:
			out = append(out, DiffLine{Kind: DiffAdded, Text: b[j]})
			j++
		}
	}
	for ; i < len(a); i++ {
		out = append(out, DiffLine{Kind: DiffRemoved, Text: a[i]})
	}
	for ; j < len(b); j++ {
		out = append(out, DiffLine{Kind: DiffAdded, Text: b[j]})
	}
	return out
}
