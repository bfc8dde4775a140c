// Package planner implements the link planner (C7): it walks a connected
// ObjectQuery tree and lowers it into the labeled map of SQL statements the
// executor runs — one per top-level node (plus an optional count
// statement) and one per link, correlated to its parent.
package planner

import (
	"fmt"
	"strings"

	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/render"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// Plan is the labeled map of statements produced for one top-level
// operation; order preserves parent-before-child (§4.7, §5 ordering
// guarantee).
type Plan struct {
	Labels     []string
	Statements map[string]render.Statement
}

func newPlan() *Plan { return &Plan{Statements: map[string]render.Statement{}} }

func (p *Plan) add(s render.Statement) {
	p.Labels = append(p.Labels, s.Label)
	p.Statements[s.Label] = s
}

// Compile lowers every root of roots into a Plan. roots must already be
// connected (plan.ConnectLinks run on each).
func Compile(d *dialect.Dialect, schema render.Schema, roots []*plan.ObjectQuery) (*Plan, error) {
	p := newPlan()
	for _, root := range roots {
		if err := compileNode(d, schema, p, root, nil, ""); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func compileNode(d *dialect.Dialect, schema render.Schema, p *Plan, oq *plan.ObjectQuery, join *plan.JoinSpec, parentSQL string) error {
	var stmt render.Statement
	var err error

	if join != nil && isMultiLinkWithPerParentLimit(join, oq) {
		stmt, err = renderPerParentLimited(d, schema, oq, join, parentSQL)
	} else {
		stmt, err = render.RenderSelect(d, schema, oq, join, parentSQL)
	}
	if err != nil {
		return err
	}
	p.add(stmt)

	if oq.IncludeTotal && !oq.IsLink {
		countStmt, err := render.RenderCount(d, schema, oq)
		if err != nil {
			return err
		}
		p.add(countStmt)
	}

	for i, child := range oq.Links {
		childJoin := &oq.Joins[i]
		if err := compileNode(d, schema, p, child, childJoin, stmt.SQL); err != nil {
			return err
		}
	}
	return nil
}

func isMultiLinkWithPerParentLimit(join *plan.JoinSpec, oq *plan.ObjectQuery) bool {
	return join.Link.Kind == sdata.LinkMulti && oq.Limit != nil
}

// renderPerParentLimited renders a multi-link's statement with a window
// function capping rows per parent key, e.g. "first 5 items for each
// order", instead of the source's flagged single global LIMIT bug
// (SPEC_FULL.md's resolution of that Open Question): the inner query
// projects a ROW_NUMBER() partitioned by the src_* join-key columns and the
// outer query filters it to the requested window.
func renderPerParentLimited(d *dialect.Dialect, schema render.Schema, oq *plan.ObjectQuery, join *plan.JoinSpec, parentSQL string) (render.Statement, error) {
	unlimited := *oq
	unlimited.Limit = nil
	unlimited.Offset = nil
	inner, err := render.RenderSelect(d, schema, &unlimited, join, parentSQL)
	if err != nil {
		return render.Statement{}, err
	}

	partitionCols := make([]string, len(join.ParentKeys))
	for i := range join.ParentKeys {
		partitionCols[i] = fmt.Sprintf("src_%d", i)
	}

	offset := 0
	if oq.Offset != nil {
		offset = *oq.Offset
	}
	limit := *oq.Limit

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM (SELECT __w.*, ROW_NUMBER() OVER (PARTITION BY %s) AS __rn FROM (%s) __w) __pw WHERE __pw.__rn > %d AND __pw.__rn <= %d",
		strings.Join(partitionCols, ", "), inner.SQL, offset, offset+limit)

	return render.Statement{Label: oq.Path, SQL: b.String(), Params: inner.Params}, nil
}
