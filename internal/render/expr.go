package render

import (
	"fmt"
	"strings"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// RenderExpr renders f as a boolean SQL predicate against table, per §4.6
// step 4. It is exported so the policy-injected filters on both queries and
// mutations share one rendering path.
func RenderExpr(c *ctx, table string, f *filter.Filter) (string, error) {
	if f == nil {
		return "", nil
	}
	switch f.Kind {
	case filter.KindColumn:
		return renderColumn(c, f)
	case filter.KindLogical:
		return renderLogical(c, table, f)
	case filter.KindCrossTable:
		return renderCrossTable(c, table, f)
	case filter.KindRelation:
		return "", fmt.Errorf("render: bare Relation node has no bound column")
	}
	return "", fmt.Errorf("render: unknown filter kind %v", f.Kind)
}

func renderColumn(c *ctx, f *filter.Filter) (string, error) {
	if f.Next == nil || f.Next.Kind != filter.KindRelation {
		return "", fmt.Errorf("render: column %s.%s has no relation", f.Table, f.Column)
	}
	col := c.quoteCol(f.Table, f.Column)
	return renderRelation(c, col, f.Next)
}

func renderRelation(c *ctx, col string, rel *filter.Filter) (string, error) {
	switch rel.Op {
	case filter.OpIsNull:
		if b, _ := rel.Value.(bool); b {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil

	case filter.OpIn, filter.OpNin:
		items, _ := rel.Value.([]any)
		kw := "IN"
		if rel.Op == filter.OpNin {
			kw = "NOT IN"
		}
		if len(items) == 0 {
			// Empty _in/_nin renders as a tautologically false/true
			// predicate the dialect accepts rather than invalid `IN ()`.
			if rel.Op == filter.OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		placeholders := make([]string, len(items))
		for i, v := range items {
			placeholders[i] = c.pc.Add(v)
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, strings.Join(placeholders, ", ")), nil

	case filter.OpBetween:
		items, _ := rel.Value.([]any)
		if len(items) != 2 {
			return "", fmt.Errorf("render: _between requires exactly 2 values")
		}
		lo := c.pc.Add(items[0])
		hi := c.pc.Add(items[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil

	case filter.OpContains:
		p := c.pc.Add(wrapContains(rel.Value))
		return c.d.RenderLikeContains(col, p), nil

	case filter.OpStartsWith:
		p := c.pc.Add(wrapStartsWith(rel.Value))
		return c.d.RenderLikeStartsWith(col, p), nil

	case filter.OpEndsWith:
		p := c.pc.Add(wrapEndsWith(rel.Value))
		return c.d.RenderLikeEndsWith(col, p), nil

	case filter.OpLike:
		p := c.pc.Add(rel.Value)
		return c.d.RenderLikeContains(col, p), nil

	case filter.OpEq:
		return fmt.Sprintf("%s = %s", col, c.pc.Add(rel.Value)), nil
	case filter.OpNeq:
		return fmt.Sprintf("%s <> %s", col, c.pc.Add(rel.Value)), nil
	case filter.OpLt:
		return fmt.Sprintf("%s < %s", col, c.pc.Add(rel.Value)), nil
	case filter.OpLte:
		return fmt.Sprintf("%s <= %s", col, c.pc.Add(rel.Value)), nil
	case filter.OpGt:
		return fmt.Sprintf("%s > %s", col, c.pc.Add(rel.Value)), nil
	case filter.OpGte:
		return fmt.Sprintf("%s >= %s", col, c.pc.Add(rel.Value)), nil
	}
	return "", fmt.Errorf("render: unhandled operator %s", rel.Op)
}

func wrapContains(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return "%" + escapeLike(s) + "%"
}

func wrapStartsWith(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return escapeLike(s) + "%"
}

func wrapEndsWith(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return "%" + escapeLike(s)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func renderLogical(c *ctx, table string, f *filter.Filter) (string, error) {
	switch f.LogOp {
	case filter.LogNot:
		if len(f.Branches) != 1 {
			return "", fmt.Errorf("render: NOT requires exactly one branch")
		}
		inner, err := RenderExpr(c, table, f.Branches[0])
		if err != nil {
			return "", err
		}
		if inner == "" {
			return "", nil
		}
		return "NOT (" + inner + ")", nil

	case filter.LogAnd, filter.LogOr:
		kw := " AND "
		if f.LogOp == filter.LogOr {
			kw = " OR "
		}
		var parts []string
		for _, b := range f.Branches {
			s, err := RenderExpr(c, table, b)
			if err != nil {
				return "", err
			}
			if s != "" {
				parts = append(parts, "("+s+")")
			}
		}
		if len(parts) == 0 {
			return "", nil
		}
		return strings.Join(parts, kw), nil
	}
	return "", fmt.Errorf("render: unknown logical op %s", f.LogOp)
}

// renderCrossTable renders `EXISTS (SELECT 1 FROM <link table> WHERE
// <join eq> AND <sub predicate>)` (§4.6 step 4).
func renderCrossTable(c *ctx, table string, f *filter.Filter) (string, error) {
	t, ok := c.schema.Table(table)
	if !ok {
		return "", fmt.Errorf("render: unknown table %s", table)
	}
	link, ok := lookupLink(t, f.LinkName)
	if !ok {
		return "", fmt.Errorf("render: unresolved-link %s on %s", f.LinkName, table)
	}

	childTable := link.ChildTable
	if link.Kind == sdata.LinkSingle {
		childTable = link.ParentTable
	}
	ct, ok := c.schema.Table(childTable)
	if !ok {
		return "", fmt.Errorf("render: unknown table %s", childTable)
	}
	qchild := ct.QualifiedName(c.d.QuoteIdent)

	joinEq := make([]string, len(link.ParentColumns))
	for i := range link.ParentColumns {
		joinEq[i] = fmt.Sprintf("%s = %s",
			c.quoteCol(table, parentSideColumn(link, i)),
			c.quoteCol(childTable, childSideColumn(link, i)))
	}

	sub, err := RenderExpr(c, childTable, f.Sub)
	if err != nil {
		return "", err
	}

	where := strings.Join(joinEq, " AND ")
	if sub != "" {
		where += " AND " + sub
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", qchild, where), nil
}

func lookupLink(t *sdata.Table, name string) (sdata.Link, bool) {
	key := strings.ToLower(name)
	if l, ok := t.SingleLinks[key]; ok {
		return l, true
	}
	if l, ok := t.MultiLinks[key]; ok {
		return l, true
	}
	return sdata.Link{}, false
}

// parentSideColumn/childSideColumn return the i'th column on the *current*
// table's side of the join, regardless of whether the link is Single
// (current table holds the FK, i.e. ChildColumns) or Multi (current table
// is the referenced side, i.e. ParentColumns).
func parentSideColumn(link sdata.Link, i int) string {
	if link.Kind == sdata.LinkSingle {
		return link.ChildColumns[i]
	}
	return link.ParentColumns[i]
}

func childSideColumn(link sdata.Link, i int) string {
	if link.Kind == sdata.LinkSingle {
		return link.ParentColumns[i]
	}
	return link.ChildColumns[i]
}
