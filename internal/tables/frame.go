// Package tables holds the flat, typed frames the pipeline produces and the
// Parquet encoding used to persist them.
package tables

import "fmt"

// Kind is the physical type of a column.
type Kind int

const (
	String Kind = iota
	Float
	Int
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	default:
		return "string"
	}
}

// Column names a typed column.
type Column struct {
	Name string
	Kind Kind
}

// Row holds one value per column: nil, string, float64 or int64.
type Row []any

// Frame is an ordered set of columns and rows.
type Frame struct {
	Columns []Column
	Rows    []Row
}

// NewFrame returns an empty frame with the given columns.
func NewFrame(cols []Column) Frame {
	return Frame{Columns: append([]Column(nil), cols...)}
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.Rows) }

// Names returns the column names in order.
func (f Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of column name, or -1.
func (f Frame) Index(name string) int {
	for i, c := range f.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Value returns the value of column name in row i, or nil if the column
// does not exist.
func (f Frame) Value(i int, name string) any {
	idx := f.Index(name)
	if idx < 0 {
		return nil
	}
	return f.Rows[i][idx]
}

// Append adds a row after checking its width.
func (f *Frame) Append(r Row) error {
	if len(r) != len(f.Columns) {
		return fmt.Errorf("tables: row has %d values, frame has %d columns", len(r), len(f.Columns))
	}
	f.Rows = append(f.Rows, r)
	return nil
}

// Record builds a row from a map keyed by column name. Missing keys are nil.
func (f Frame) Record(values map[string]any) Row {
	r := make(Row, len(f.Columns))
	for i, c := range f.Columns {
		r[i] = values[c.Name]
	}
	return r
}

// Filter returns a frame with the rows keep accepts.
func (f Frame) Filter(keep func(Row) bool) Frame {
	out := NewFrame(f.Columns)
	for _, r := range f.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}
