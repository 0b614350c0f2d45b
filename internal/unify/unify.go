// Package unify joins the yearly statements and statement items tables into
// one denormalized table per year.
package unify

import (
	"fmt"
	"sort"

	"github.com/dvloznov/statement-pipeline/internal/tables"
)

// Key is the join column.
const Key = "statement_id"

// Unify left-joins items onto statements by statement_id. Columns present
// in both frames are coalesced into one, preferring the item value.
// Statements without items appear once with null item columns.
func Unify(statements, items tables.Frame) tables.Frame {
	overlap := make(map[string]bool)
	for _, c := range statements.Columns {
		if c.Name != Key && items.Index(c.Name) >= 0 {
			overlap[c.Name] = true
		}
	}
	overlapNames := make([]string, 0, len(overlap))
	for name := range overlap {
		overlapNames = append(overlapNames, name)
	}
	sort.Strings(overlapNames)

	type source struct {
		st, it int
		kind   tables.Kind
		text   bool
	}
	var cols []tables.Column
	var srcs []source
	seen := make(map[string]bool)
	add := func(c tables.Column, s source) {
		if seen[c.Name] {
			return
		}
		seen[c.Name] = true
		cols = append(cols, c)
		srcs = append(srcs, s)
	}

	if i := statements.Index(Key); i >= 0 {
		add(statements.Columns[i], source{st: i, it: -1})
	}
	for i, c := range statements.Columns {
		if c.Name != Key && !overlap[c.Name] {
			add(c, source{st: i, it: -1})
		}
	}
	for _, name := range overlapNames {
		st, it := statements.Index(name), items.Index(name)
		c := items.Columns[it]
		s := source{st: st, it: it}
		if statements.Columns[st].Kind != c.Kind {
			c.Kind = tables.String
			s.text = true
		}
		add(c, s)
	}
	for i, c := range items.Columns {
		if c.Name != Key && !overlap[c.Name] {
			add(c, source{st: -1, it: i})
		}
	}

	byStatement := make(map[any][]tables.Row)
	if k := items.Index(Key); k >= 0 {
		for _, r := range items.Rows {
			byStatement[r[k]] = append(byStatement[r[k]], r)
		}
	}

	out := tables.NewFrame(cols)
	key := statements.Index(Key)
	for _, st := range statements.Rows {
		var matches []tables.Row
		if key >= 0 && st[key] != nil {
			matches = byStatement[st[key]]
		}
		if len(matches) == 0 {
			matches = []tables.Row{nil}
		}
		for _, it := range matches {
			row := make(tables.Row, len(cols))
			for i, s := range srcs {
				var v any
				if s.it >= 0 && it != nil {
					v = it[s.it]
				}
				if v == nil && s.st >= 0 {
					v = st[s.st]
				}
				if s.text && v != nil {
					v = fmt.Sprint(v)
				}
				row[i] = v
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
