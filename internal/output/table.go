package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Table renders rows such as the task checklist as aligned text columns.
type Table struct {
	headers   []string
	rows      [][]string
	maxWidth  int
	separator string
}

// NewTable creates a new table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers:   headers,
		separator: "  ",
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// SetMaxWidth truncates cells longer than n runes. Zero disables truncation.
func (t *Table) SetMaxWidth(n int) {
	t.maxWidth = n
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return nil
	}

	widths := t.widths()

	if len(t.headers) > 0 {
		if err := t.renderRow(w, t.headers, widths); err != nil {
			return err
		}
		rule := make([]string, len(widths))
		for i, n := range widths {
			rule[i] = strings.Repeat("-", n)
		}
		if err := t.writeLine(w, rule); err != nil {
			return err
		}
	}

	for _, row := range t.rows {
		if err := t.renderRow(w, row, widths); err != nil {
			return err
		}
	}
	return nil
}

// String returns the table as a string.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

func (t *Table) widths() []int {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}

	widths := make([]int, cols)
	for i, h := range t.headers {
		widths[i] = max(widths[i], utf8.RuneCountInString(t.clip(h)))
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(t.clip(cell)))
		}
	}
	return widths
}

func (t *Table) clip(s string) string {
	if t.maxWidth <= 0 || utf8.RuneCountInString(s) <= t.maxWidth {
		return s
	}
	if t.maxWidth == 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:t.maxWidth-1]) + "…"
}

func (t *Table) renderRow(w io.Writer, cells []string, widths []int) error {
	parts := make([]string, len(widths))
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = t.clip(cells[i])
		}
		parts[i] = cell + strings.Repeat(" ", width-utf8.RuneCountInString(cell))
	}
	return t.writeLine(w, parts)
}

func (t *Table) writeLine(w io.Writer, parts []string) error {
	_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, t.separator), " "))
	return err
}
