package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeShapeColumnsAndHead(t *testing.T) {
	rows := make([][]string, 0, 8)
	for i := 0; i < 8; i++ {
		rows = append(rows, []string{string(rune('a' + i)), "1"})
	}
	tbl := New("t.csv", []string{"letter", "n"}, rows)

	out := Summarize(tbl, DefaultSummaryOptions())
	assert.Contains(t, out, "shape: (8, 2)")
	assert.Contains(t, out, `columns: ["letter", "n"]`)
	assert.Contains(t, out, "letter: categorical")
	assert.Contains(t, out, "n: numeric (min 1, max 1, mean 1)")

	head := out[strings.Index(out, "head:"):]
	lines := strings.Split(strings.TrimSpace(head), "\n")
	// "head:" + header + 5 rows
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[6], "e"))
}

func TestSummarizeDeterministic(t *testing.T) {
	tbl := New("t.csv", []string{"a", "b"}, [][]string{{"1", "x"}, {"2", "y"}})
	opt := SummaryOptions{SampleRows: 1}
	assert.Equal(t, Summarize(tbl, opt), Summarize(tbl, opt))
}

func TestSummarizeEmptyTable(t *testing.T) {
	out := Summarize(New("empty.csv", nil, nil), DefaultSummaryOptions())
	assert.Contains(t, out, "shape: (0, 0)")
	assert.Contains(t, out, "(empty table)")

	noRows := Summarize(New("header.csv", []string{"a"}, nil), DefaultSummaryOptions())
	assert.Contains(t, noRows, "shape: (0, 1)")
	assert.Contains(t, noRows, "a: unknown")
}

func TestSummarizeBoundsTokensAndCells(t *testing.T) {
	long := strings.Repeat("x", 200)
	rows := make([][]string, 0, 5)
	for i := 0; i < 5; i++ {
		rows = append(rows, []string{long})
	}
	tbl := New("wide.csv", []string{"blob"}, rows)
	out := Summarize(tbl, SummaryOptions{SampleRows: 5, MaxTokens: 10000})
	assert.NotContains(t, out, long)
	assert.Contains(t, out, strings.Repeat("x", 77)+"...")

	bounded := Summarize(tbl, SummaryOptions{SampleRows: 5, MaxTokens: 40})
	assert.LessOrEqual(t, len([]rune(bounded)), 160)
}
