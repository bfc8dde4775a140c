// Package render is the parameterized SQL renderer (§4.6): given one
// ObjectQuery node and a dialect, it builds a single SELECT/INSERT/UPDATE/
// DELETE statement with every value-bearing site routed through a
// ParamCollection and every identifier through the dialect's quoter so the
// rendered text is injection-proof by construction (§8 universal invariant).
package render

import (
	"fmt"
	"strings"

	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// ParamCollection accumulates bind values in first-use order. Add hands
// back the dialect's placeholder text for each value ("$1", "?", "@p1",
// ...); Values() returns the values in that same dense order.
type ParamCollection struct {
	d      *dialect.Dialect
	values []any
}

func NewParamCollection(d *dialect.Dialect) *ParamCollection {
	return &ParamCollection{d: d}
}

// Add appends v and returns the dialect placeholder text to splice into the
// SQL at the call site.
func (p *ParamCollection) Add(v any) string {
	idx := len(p.values)
	p.values = append(p.values, v)
	return p.d.ParamPlaceholder(idx)
}

func (p *ParamCollection) Values() []any { return p.values }

// Statement is one rendered, self-contained SQL statement plus its bind
// values in first-use order — the contract handed unchanged to the driver.
type Statement struct {
	Label  string
	SQL    string
	Params []any
}

// Schema is the lookup surface the renderer needs.
type Schema interface {
	Table(name string) (*sdata.Table, bool)
}

// ctx is the mutable state threaded through one statement's render.
type ctx struct {
	d      *dialect.Dialect
	schema Schema
	pc     *ParamCollection
	w      strings.Builder
}

func (c *ctx) quote(s string) string { return c.d.QuoteIdent(s) }

func (c *ctx) quoteCol(table, col string) string {
	return c.quote(table) + "." + c.quote(col)
}

// RenderSelect renders the standalone SELECT for oq. When parentSQL is
// non-empty, oq is a link and the statement correlates to the parent via
// `WHERE (child_keys) IN (SELECT parent_keys FROM (parentSQL) __p)`, with
// the parent's join keys additionally projected as src_<idx> columns
// (§4.6 steps 1/3).
func RenderSelect(d *dialect.Dialect, schema Schema, oq *plan.ObjectQuery, join *plan.JoinSpec, parentSQL string) (Statement, error) {
	c := &ctx{d: d, schema: schema, pc: NewParamCollection(d)}

	table, ok := schema.Table(oq.Table)
	if !ok {
		return Statement{}, fmt.Errorf("render: unknown table %s", oq.Table)
	}
	qtable := table.QualifiedName(d.QuoteIdent)

	c.w.WriteString("SELECT ")
	first := true
	if join != nil {
		for i, pk := range join.ParentKeys {
			if !first {
				c.w.WriteString(", ")
			}
			fmt.Fprintf(&c.w, "%s AS %s", c.quoteCol(oq.Table, childKeyForParent(join, pk)), srcCol(i))
			first = false
		}
	}
	for _, col := range oq.ScalarColumns {
		if !first {
			c.w.WriteString(", ")
		}
		c.w.WriteString(c.quoteCol(oq.Table, col))
		first = false
	}
	// Project this node's own join-key columns (the columns its children
	// correlate against) even when the caller never selected them as
	// scalars, under a distinct alias the assembler reads and the response
	// formatter discards. Without this a parent row has no exposed value to
	// match its children's src_* tuple against.
	for _, ownKey := range ownJoinKeyColumns(oq) {
		if !first {
			c.w.WriteString(", ")
		}
		fmt.Fprintf(&c.w, "%s AS %s", c.quoteCol(oq.Table, ownKey), joinKeyCol(ownKey))
		first = false
	}
	if first {
		c.w.WriteString("*")
	}

	fmt.Fprintf(&c.w, " FROM %s", qtable)

	var where []string
	if join != nil {
		inList := make([]string, len(join.ChildKeys))
		for i, ck := range join.ChildKeys {
			inList[i] = c.quoteCol(oq.Table, ck)
		}
		pkList := make([]string, len(join.ParentKeys))
		for i, pk := range join.ParentKeys {
			pkList[i] = "__p." + joinKeyCol(pk)
		}
		where = append(where, fmt.Sprintf("(%s) IN (SELECT %s FROM (%s) __p)",
			strings.Join(inList, ", "), strings.Join(pkList, ", "), parentSQL))
	}

	if oq.Filter != nil {
		pred, err := RenderExpr(c, oq.Table, oq.Filter)
		if err != nil {
			return Statement{}, err
		}
		if pred != "" {
			where = append(where, pred)
		}
	}

	if len(where) > 0 {
		c.w.WriteString(" WHERE ")
		c.w.WriteString(strings.Join(where, " AND "))
	}

	hasOrderBy := len(oq.Sort) > 0
	wantsPagination := oq.Offset != nil || oq.Limit != nil
	if hasOrderBy {
		c.w.WriteString(" ORDER BY ")
		parts := make([]string, len(oq.Sort))
		for i, s := range oq.Sort {
			dir := "ASC"
			if s.Direction == opx.Desc {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("%s %s", c.quoteCol(oq.Table, s.Column), dir)
		}
		c.w.WriteString(strings.Join(parts, ", "))
	} else if wantsPagination && dialect.NeedsOrderBySentinel(d.Name) {
		c.w.WriteString(dialect.OrderBySentinel)
	}

	c.w.WriteString(d.RenderPagination(oq.Offset, oq.Limit, hasOrderBy))

	return Statement{Label: oq.Path, SQL: c.w.String(), Params: c.pc.Values()}, nil
}

// RenderCount renders the `<name>=>count` statement (§4.6 step 7): same
// filtered/joined source, no pagination, no sort.
func RenderCount(d *dialect.Dialect, schema Schema, oq *plan.ObjectQuery) (Statement, error) {
	c := &ctx{d: d, schema: schema, pc: NewParamCollection(d)}
	table, ok := schema.Table(oq.Table)
	if !ok {
		return Statement{}, fmt.Errorf("render: unknown table %s", oq.Table)
	}
	qtable := table.QualifiedName(d.QuoteIdent)

	fmt.Fprintf(&c.w, "SELECT COUNT(*) FROM %s", qtable)

	if oq.Filter != nil {
		pred, err := RenderExpr(c, oq.Table, oq.Filter)
		if err != nil {
			return Statement{}, err
		}
		if pred != "" {
			c.w.WriteString(" WHERE ")
			c.w.WriteString(pred)
		}
	}

	return Statement{Label: oq.Path + "=>count", SQL: c.w.String(), Params: c.pc.Values()}, nil
}

func srcCol(i int) string { return SrcColumn(i) }

// SrcColumn is the alias a child statement projects its i'th parent-key
// value under (§3 invariant: every non-root statement's rows include a
// synthetic src_* column equal to the parent key tuple).
func SrcColumn(i int) string { return fmt.Sprintf("src_%d", i) }

// JoinKeyColumn is the projected alias for a node's own join-key column,
// exposed so the assembler can read it without it leaking into
// oq.ScalarColumns / the formatted response.
func JoinKeyColumn(col string) string { return "__jk_" + col }

func joinKeyCol(col string) string { return JoinKeyColumn(col) }

// ownJoinKeyColumns returns the deduplicated set of parent-side columns
// this node's own child links correlate against.
func ownJoinKeyColumns(oq *plan.ObjectQuery) []string {
	seen := map[string]bool{}
	var cols []string
	for _, j := range oq.Joins {
		for _, pk := range j.ParentKeys {
			if !seen[pk] {
				seen[pk] = true
				cols = append(cols, pk)
			}
		}
	}
	return cols
}

// childKeyForParent returns the i'th child-side column for a parent key at
// the same index (ParentKeys[i] <-> ChildKeys[i], per Link's paired
// ordering).
func childKeyForParent(join *plan.JoinSpec, parentKey string) string {
	for i, pk := range join.ParentKeys {
		if pk == parentKey {
			return join.ChildKeys[i]
		}
	}
	return parentKey
}
