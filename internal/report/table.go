// Package report renders dashboard widgets as plain-text tables for the CLI.
package report

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxCell bounds a column's display width; longer cells are cut with an
// ellipsis.
const maxCell = 60

type Table struct {
	Header []string
	Rows   [][]string
	// Right marks columns that are right-aligned, typically counts.
	Right  map[int]bool
}

func (t *Table) Add(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table with columns padded to their display width, so
// wide runes line up.
func (t *Table) Render(w io.Writer) error {
	cols := len(t.Header)
	for _, row := range t.Rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return nil
	}
	widths := make([]int, cols)
	measure := func(row []string) {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(clip(cell)))
		}
	}
	measure(t.Header)
	for _, row := range t.Rows {
		measure(row)
	}

	var sb strings.Builder
	line := func(row []string) {
		for i := 0; i < cols; i++ {
			cell := ""
			if i < len(row) {
				cell = clip(row[i])
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			pad := strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell))
			if t.Right[i] {
				sb.WriteString(pad + cell)
			} else if i < cols-1 {
				sb.WriteString(cell + pad)
			} else {
				sb.WriteString(cell)
			}
		}
		sb.WriteString("\n")
	}
	if len(t.Header) > 0 {
		line(t.Header)
		seps := make([]string, cols)
		for i := range seps {
			seps[i] = strings.Repeat("-", widths[i])
		}
		line(seps)
	}
	for _, row := range t.Rows {
		line(row)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if runewidth.StringWidth(s) <= maxCell {
		return s
	}
	return runewidth.Truncate(s, maxCell, "…")
}
