package vcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChanged_IgnoresTrailingWhitespace(t *testing.T) {
	tests := []struct {
		name     string
		old, new string
		want     bool
	}{
		{"identical", "KEY=1\n", "KEY=1\n", false},
		{"trailing spaces on a line", "KEY=1\n", "KEY=1   \n", false},
		{"trailing tabs", "KEY=1\nOTHER=2\n", "KEY=1\t\nOTHER=2\n", false},
		{"added trailing blank lines", "KEY=1\n", "KEY=1\n\n\n", false},
		{"missing final newline", "KEY=1\n", "KEY=1", false},
		{"crlf line endings", "KEY=1\n", "KEY=1\r\n", false},
		{"value changed", "KEY=1\n", "KEY=2\n", true},
		{"line added", "KEY=1\n", "KEY=1\nNEW=x\n", true},
		{"leading whitespace is significant", "KEY=1\n", "  KEY=1\n", true},
		{"interior blank line added", "A=1\nB=2\n", "A=1\n\nB=2\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Changed(tt.old, tt.new))
		})
	}
}

func TestDiff_AddRemoveKeep(t *testing.T) {
	before := "A=1\nB=2\nC=3\n"
	after := "A=1\nB=changed\nC=3\nD=4\n"

	lines := Diff(before, after)
	require.Equal(t, []DiffLine{
		{Kind: DiffSame, Text: "A=1"},
		{Kind: DiffRemoved, Text: "B=2"},
		{Kind: DiffAdded, Text: "B=changed"},
		{Kind: DiffSame, Text: "C=3"},
		{Kind: DiffAdded, Text: "D=4"},
	}, lines)
}

func TestDiff_EmptySides(t *testing.T) {
	require.Empty(t, Diff("", ""))

	added := Diff("", "A=1\n")
	require.Equal(t, []DiffLine{{Kind: DiffAdded, Text: "A=1"}}, added)

	removed := Diff("A=1\n", "")
	require.Equal(t, []DiffLine{{Kind: DiffRemoved, Text: "A=1"}}, removed)
}
