package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/filter"
)

// RenderInsert renders a single-row INSERT with a RETURNING-less primary-key
// friendly form; callers needing the generated id read it back via
// LastInsertId, which the Engine's tree-sync mutation path (gqlsql.go) does.
func RenderInsert(d *dialect.Dialect, schema Schema, table string, data map[string]any) (Statement, error) {
	c := &ctx{d: d, schema: schema, pc: NewParamCollection(d)}
	t, ok := schema.Table(table)
	if !ok {
		return Statement{}, fmt.Errorf("render: unknown table %s", table)
	}

	cols := sortedKeys(data)
	qcols := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		qcols[i] = c.quote(col)
		placeholders[i] = c.pc.Add(data[col])
	}

	fmt.Fprintf(&c.w, "INSERT INTO %s (%s) VALUES (%s)",
		t.QualifiedName(d.QuoteIdent), strings.Join(qcols, ", "), strings.Join(placeholders, ", "))

	return Statement{Label: table, SQL: c.w.String(), Params: c.pc.Values()}, nil
}

// RenderUpdate renders a single-statement UPDATE with the predicate f
// (already combined with any policy-added filter, e.g. soft-delete's
// "deleted_at IS NULL", by the caller).
func RenderUpdate(d *dialect.Dialect, schema Schema, table string, data map[string]any, f *filter.Filter) (Statement, error) {
	c := &ctx{d: d, schema: schema, pc: NewParamCollection(d)}
	t, ok := schema.Table(table)
	if !ok {
		return Statement{}, fmt.Errorf("render: unknown table %s", table)
	}

	cols := sortedKeys(data)
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = %s", c.quote(col), c.pc.Add(data[col]))
	}

	fmt.Fprintf(&c.w, "UPDATE %s SET %s", t.QualifiedName(d.QuoteIdent), strings.Join(sets, ", "))

	if f != nil {
		pred, err := RenderExpr(c, table, f)
		if err != nil {
			return Statement{}, err
		}
		if pred != "" {
			c.w.WriteString(" WHERE ")
			c.w.WriteString(pred)
		}
	}

	return Statement{Label: table, SQL: c.w.String(), Params: c.pc.Values()}, nil
}

// RenderDelete renders a hard DELETE. When policy.SoftDeleteMutation is
// registered, soft-delete tables never reach this function: the
// mutation-transformer chain rewrites their Delete into an Update before
// the renderer runs (§4.5, §8 "a DELETE on a soft-delete
// table never produces a SQL DELETE statement").
func RenderDelete(d *dialect.Dialect, schema Schema, table string, f *filter.Filter) (Statement, error) {
	c := &ctx{d: d, schema: schema, pc: NewParamCollection(d)}
	t, ok := schema.Table(table)
	if !ok {
		return Statement{}, fmt.Errorf("render: unknown table %s", table)
	}

	fmt.Fprintf(&c.w, "DELETE FROM %s", t.QualifiedName(d.QuoteIdent))

	if f != nil {
		pred, err := RenderExpr(c, table, f)
		if err != nil {
			return Statement{}, err
		}
		if pred != "" {
			c.w.WriteString(" WHERE ")
			c.w.WriteString(pred)
		}
	}

	return Statement{Label: table, SQL: c.w.String(), Params: c.pc.Values()}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
