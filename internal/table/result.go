package table

import (
	"fmt"
	"strings"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/record"
)

// Result is a rendered set of rows, used by the REPL and the web API.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Message string   `json:"message,omitempty"`
}

// NewResult converts cursor rows to a result. Tuples are taken as they
// are, dicts and records are laid out by columns.
func NewResult(columns []string, rows []any) *Result {
	res := &Result{Columns: columns, Rows: make([][]any, 0, len(rows))}
	for _, row := range rows {
		switch r := row.(type) {
		case *record.Record:
			if res.Columns == nil {
				res.Columns = r.Schema().Names()
			}
			out := make([]any, len(res.Columns))
			for i, name := range res.Columns {
				out[i] = r.Get(name)
			}
			res.Rows = append(res.Rows, out)
		case map[string]any:
			out := make([]any, len(res.Columns))
			for i, name := range res.Columns {
				out[i] = r[name]
			}
			res.Rows = append(res.Rows, out)
		default:
			if t, ok := operator.Tuple(row); ok {
				res.Rows = append(res.Rows, t)
			} else {
				res.Rows = append(res.Rows, []any{row})
			}
		}
	}
	return res
}

// FetchResult drains a cursor into a result.
func FetchResult(c *Cursor, size int) (*Result, error) {
	rows, err := c.Fetch(size)
	if err != nil {
		return nil, err
	}
	return NewResult(c.Names(), rows), nil
}

// String renders the result as a text table.
func (r *Result) String() string {
	if r.Message != "" {
		return r.Message
	}
	if len(r.Rows) == 0 {
		return "(no rows)"
	}

	width := len(r.Columns)
	for _, row := range r.Rows {
		width = max(width, len(row))
	}
	header := make([]string, width)
	copy(header, r.Columns)
	cells := make([][]string, len(r.Rows))
	widths := make([]int, width)
	for i, h := range header {
		widths[i] = len(h)
	}
	for i, row := range r.Rows {
		cells[i] = make([]string, width)
		for j, v := range row {
			cells[i][j] = expr.Str(v)
			widths[j] = max(widths[j], len(cells[i][j]))
		}
	}

	var sb strings.Builder
	rule := func() {
		sb.WriteString("+")
		for _, w := range widths {
			sb.WriteString(strings.Repeat("-", w+2))
			sb.WriteString("+")
		}
		sb.WriteString("\n")
	}
	line := func(values []string) {
		sb.WriteString("|")
		for i, v := range values {
			fmt.Fprintf(&sb, " %-*s |", widths[i], v)
		}
		sb.WriteString("\n")
	}

	rule()
	line(header)
	rule()
	for _, row := range cells {
		line(row)
	}
	rule()
	fmt.Fprintf(&sb, "(%d rows)\n", len(r.Rows))
	return sb.String()
}
