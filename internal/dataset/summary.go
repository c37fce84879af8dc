package dataset

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/datachat/internal/utils"
)

// SummaryOptions bounds the text produced by Summarize.
type SummaryOptions struct {
	// SampleRows is how many leading rows to render; 0 means 5.
	SampleRows int
	// MaxTokens truncates the rendered summary; 0 means 2000.
	MaxTokens int
}

// DefaultSummaryOptions returns the prompt defaults.
func DefaultSummaryOptions() SummaryOptions {
	return SummaryOptions{SampleRows: 5, MaxTokens: 2000}
}

const maxCellChars = 80

// Summarize renders a compact, deterministic profile of t for prompting:
// shape, column names in order, per-column kind, numeric ranges and the
// first rows as a text grid.
func Summarize(t *Table, opt SummaryOptions) string {
	if opt.SampleRows <= 0 {
		opt.SampleRows = 5
	}
	if opt.MaxTokens <= 0 {
		opt.MaxTokens = 2000
	}
	var b strings.Builder
	fmt.Fprintf(&b, "shape: (%d, %d)\n", t.NumRows(), t.NumCols())
	cols := t.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	fmt.Fprintf(&b, "columns: [%s]\n", strings.Join(quoted, ", "))
	b.WriteString("dtypes:\n")
	for _, c := range t.cols {
		fmt.Fprintf(&b, "  %s: %s", safeName(c.Name), c.Kind)
		if c.Unit != "" {
			fmt.Fprintf(&b, " [%s]", c.Unit)
		}
		if c.Kind == KindNumeric && t.NumRows() > 0 {
			s := t.Stats(c.Name)
			fmt.Fprintf(&b, " (min %.4g, max %.4g, mean %.4g)", s.Min, s.Max, s.Mean)
		}
		b.WriteString("\n")
	}
	b.WriteString("head:\n")
	b.WriteString(renderGrid(cols, t.Head(opt.SampleRows).rows, maxCellChars))
	return utils.TruncateToTokenLimit(b.String(), opt.MaxTokens)
}

// renderGrid lays out a header and rows in padded columns. Cells longer
// than maxCell runes are shortened when maxCell > 0.
func renderGrid(header []string, rows [][]string, maxCell int) string {
	if len(header) == 0 {
		return "(empty table)\n"
	}
	clip := func(s string) string {
		s = safeVal(s)
		r := []rune(s)
		if maxCell > 0 && len(r) > maxCell {
			return string(r[:maxCell-3]) + "..."
		}
		return s
	}
	widths := make([]int, len(header))
	cells := make([][]string, 0, len(rows)+1)
	head := make([]string, len(header))
	for j, h := range header {
		head[j] = clip(safeName(h))
	}
	cells = append(cells, head)
	for _, r := range rows {
		line := make([]string, len(header))
		for j := range header {
			if j < len(r) {
				line[j] = clip(r[j])
			}
		}
		cells = append(cells, line)
	}
	for _, line := range cells {
		for j, c := range line {
			if n := len([]rune(c)); n > widths[j] {
				widths[j] = n
			}
		}
	}
	var b strings.Builder
	for _, line := range cells {
		for j, c := range line {
			if j > 0 {
				b.WriteString("  ")
			}
			b.WriteString(c)
			if j < len(line)-1 {
				b.WriteString(strings.Repeat(" ", widths[j]-len([]rune(c))))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(s, "\n", " ") }
