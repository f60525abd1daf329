package backend

import (
	"fmt"
	"regexp"
)

// Op is a filter operator.
type Op string

const (
	Eq  Op = "eq"
	Neq Op = "neq"
)

// Filter restricts a column.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts by a column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a table read. Both transports support exactly this subset.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Order   []Order
	Limit   int
}

// From starts a query on table.
func From(table string) Query { return Query{Table: table} }

// Select sets the returned columns (all when empty).
func (q Query) Select(cols ...string) Query { q.Columns = cols; return q }

// Eq adds an equality filter.
func (q Query) Eq(col string, v any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: col, Op: Eq, Value: v})
	return q
}

// Neq adds an inequality filter.
func (q Query) Neq(col string, v any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: col, Op: Neq, Value: v})
	return q
}

// OrderBy appends a sort column.
func (q Query) OrderBy(col string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: col, Desc: desc})
	return q
}

// WithLimit caps the number of rows.
func (q Query) WithLimit(n int) Query { q.Limit = n; return q }

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdent reports whether s is a plain lowercase identifier.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// Validate checks all identifiers in q.
func (q Query) Validate() error {
	if !ValidIdent(q.Table) {
		return fmt.Errorf("bad table %q", q.Table)
	}
	for _, c := range q.Columns {
		if !ValidIdent(c) {
			return fmt.Errorf("bad column %q", c)
		}
	}
	for _, f := range q.Filters {
		if !ValidIdent(f.Column) {
			return fmt.Errorf("bad filter column %q", f.Column)
		}
		if f.Op != Eq && f.Op != Neq {
			return fmt.Errorf("bad operator %q", f.Op)
		}
	}
	for _, o := range q.Order {
		if !ValidIdent(o.Column) {
			return fmt.Errorf("bad order column %q", o.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit")
	}
	return nil
}
