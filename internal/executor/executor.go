// Package executor opens a connection, runs the labeled statement map
// produced by the link planner in parent-before-child order, and reads back
// RowSets (§4.8, §5). Sibling links below one parent may run concurrently
// on separate connections from the same pool; a single top-level request
// still checks out and reuses one connection for its own chain.
package executor

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vertagql/gqlsql/internal/gqlerr"
	"github.com/vertagql/gqlsql/internal/planner"
)

// ConnFactory opens the *sql.DB for one request's target database. In
// practice this is a long-lived pool handed in at Engine construction time;
// the Engine calls it once per request and hands the *sql.DB to Run, never
// once per statement.
type ConnFactory func(ctx context.Context) (*sql.DB, error)

// Node describes one entry of the statement tree to execute, mirroring the
// planner's parent-before-child structure so the executor can honor
// ordering without re-deriving it from path strings.
type Node struct {
	Label    string
	Children []*Node
}

// BuildTree turns a flat planner.Plan into the Node tree Run walks, using
// "=>"-delimited label prefixes to find each statement's parent.
func BuildTree(p *planner.Plan) []*Node {
	byLabel := map[string]*Node{}
	var roots []*Node
	for _, label := range p.Labels {
		n := &Node{Label: label}
		byLabel[label] = n
		if parent, ok := parentLabel(label); ok {
			if pn, ok := byLabel[parent]; ok {
				pn.Children = append(pn.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

func parentLabel(label string) (string, bool) {
	idx := lastArrow(label)
	if idx < 0 {
		return "", false
	}
	return label[:idx], true
}

func lastArrow(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] == '=' && s[i+1] == '>' {
			return i
		}
	}
	return -1
}

// Run executes every statement in p against db, honoring parent-before-
// child ordering and ctx cancellation/deadline across the whole request
// (not per statement, §5 "Timeouts").
func Run(ctx context.Context, db *sql.DB, p *planner.Plan) (map[string]*RowSet, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, gqlerr.New(gqlerr.KindDriverFailure, gqlerr.CodeConnectionOpenFailed, "", err.Error())
	}
	defer conn.Close()

	roots := BuildTree(p)
	out := make(map[string]*RowSet, len(p.Statements))

	var run func(nodes []*Node) error
	run = func(nodes []*Node) error {
		g, gctx := errgroup.WithContext(ctx)
		results := make([]*RowSet, len(nodes))
		for i, n := range nodes {
			i, n := i, n
			g.Go(func() error {
				c := conn
				if len(nodes) > 1 {
					// Concurrent siblings each take their own connection; a
					// lone node keeps using the request's connection.
					sc, err := db.Conn(gctx)
					if err != nil {
						return gqlerr.New(gqlerr.KindDriverFailure, gqlerr.CodeConnectionOpenFailed, n.Label, err.Error())
					}
					defer sc.Close()
					c = sc
				}
				stmt := p.Statements[n.Label]
				rs, err := execOne(gctx, c, stmt.SQL, stmt.Params)
				if err != nil {
					return gqlerr.Driver(n.Label, err)
				}
				results[i] = rs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i, n := range nodes {
			out[n.Label] = results[i]
			if err := run(n.Children); err != nil {
				return err
			}
		}
		return nil
	}

	if err := run(roots); err != nil {
		return nil, err
	}
	return out, nil
}

func execOne(ctx context.Context, conn *sql.Conn, query string, params []any) (*RowSet, error) {
	rows, err := conn.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := newRowSet(cols)

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}
