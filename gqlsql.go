// Package gqlsql is the relational-database-to-GraphQL adapter's public
// entry point: introspect a live database once at startup, then execute
// already-parsed GraphQL operation trees against it, translating each into
// a flight of parameterized SQL statements and assembling their rowsets
// back into a nested response (control flow: plan -> policy -> link
// expansion -> render -> execute -> assemble).
package gqlsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vertagql/gqlsql/internal/assembler"
	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/executor"
	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/gqlerr"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/planner"
	"github.com/vertagql/gqlsql/internal/policy"
	"github.com/vertagql/gqlsql/internal/render"
	"github.com/vertagql/gqlsql/internal/sdata"
	"github.com/vertagql/gqlsql/internal/treesync"
)

// ConnFactory opens the *sql.DB backing one Engine. Reused across requests;
// Engine never opens a pool itself.
type ConnFactory = executor.ConnFactory

// Introspect runs the external introspect(dialect, connection_factory,
// metadata_rules) entry point (§6): opens one connection via connFactory,
// dumps the schema with sdata.Introspect's queries for d.Name, and applies ml's rules before
// the model is frozen.
func Introspect(ctx context.Context, d *dialect.Dialect, connFactory ConnFactory, ml *sdata.MetadataLoader) (*sdata.DBModel, error) {
	db, err := connFactory(ctx)
	if err != nil {
		return nil, gqlerr.New(gqlerr.KindDriverFailure, gqlerr.CodeConnectionOpenFailed, "", err.Error())
	}
	return sdata.Introspect(ctx, db, d.Name, ml)
}

// Engine is the adapter's long-lived, immutable-after-construction handle:
// one DBModel, one Dialect, one policy Registry, sharing a connection pool
// across every request (§5 "Shared resources").
type Engine struct {
	d           *dialect.Dialect
	model       *sdata.DBModel
	policies    *policy.Registry
	connFactory ConnFactory
	log         *zap.SugaredLogger
}

// New builds an Engine from an already-introspected model and a configured
// policy registry.
func New(d *dialect.Dialect, model *sdata.DBModel, policies *policy.Registry, connFactory ConnFactory, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if policies == nil {
		policies = policy.NewRegistry()
	}
	return &Engine{d: d, model: model, policies: policies, connFactory: connFactory, log: log}
}

// Warning is a non-fatal observation surfaced alongside a successful
// response (currently: assembler cardinality warnings).
type Warning = assembler.Warning

// Execute runs one already-parsed operation tree end to end (§6):
// execute(operation_tree, variables, user_context, deadline) -> Response.
// Queries and mutations fan out per root selection; mutation data flows
// through the policy layer's mutation-transformer and audit-module chains,
// with nested object trees additionally going through tree sync (C10).
func (e *Engine) Execute(ctx context.Context, op *opx.OperationTree, vars opx.Variables, user opx.UserContext, deadline time.Time) (*opx.Response, []Warning, []*gqlerr.Error) {
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	switch op.Kind {
	case opx.OpQuery:
		return e.executeQuery(ctx, op, user)
	case opx.OpMutation:
		resp, errs := e.executeMutation(ctx, op, user)
		return resp, nil, errs
	default:
		return nil, nil, []*gqlerr.Error{gqlerr.Internal("", fmt.Sprintf("unknown operation kind %v", op.Kind))}
	}
}

func (e *Engine) executeQuery(ctx context.Context, op *opx.OperationTree, user opx.UserContext) (*opx.Response, []Warning, []*gqlerr.Error) {
	now := time.Now()
	roots := make([]*plan.ObjectQuery, 0, len(op.RootSelections))
	for _, sel := range op.RootSelections {
		oq, err := plan.Lower(e.model, sel)
		if err != nil {
			return nil, nil, []*gqlerr.Error{toGQLErr(err)}
		}
		if err := plan.ConnectLinks(e.model, oq); err != nil {
			return nil, nil, []*gqlerr.Error{toGQLErr(err)}
		}
		pctx := policy.Context{User: user, Now: now}
		if err := policy.ApplyFilters(e.policies, oq, pctx); err != nil {
			return nil, nil, []*gqlerr.Error{toGQLErr(err)}
		}
		roots = append(roots, oq)
	}

	p, err := planner.Compile(e.d, e.model, roots)
	if err != nil {
		return nil, nil, []*gqlerr.Error{toGQLErr(err)}
	}

	db, err := e.connFactory(ctx)
	if err != nil {
		return nil, nil, []*gqlerr.Error{gqlerr.New(gqlerr.KindDriverFailure, gqlerr.CodeConnectionOpenFailed, "", err.Error())}
	}

	rowsets, err := executor.Run(ctx, db, p)
	if err != nil {
		return nil, nil, []*gqlerr.Error{toGQLErr(err)}
	}

	resp, warnings, err := assembler.Assemble(e.d, e.model, roots, rowsets)
	if err != nil {
		return nil, nil, []*gqlerr.Error{toGQLErr(err)}
	}
	return resp, warnings, nil
}

// executeMutation runs every root mutation selection. A selection with no
// nested children is a flat single-table mutation; one with nested object
// data goes through tree sync to diff against the row's currently
// persisted shape.
func (e *Engine) executeMutation(ctx context.Context, op *opx.OperationTree, user opx.UserContext) (*opx.Response, []*gqlerr.Error) {
	now := time.Now()
	db, err := e.connFactory(ctx)
	if err != nil {
		return nil, []*gqlerr.Error{gqlerr.New(gqlerr.KindDriverFailure, gqlerr.CodeConnectionOpenFailed, "", err.Error())}
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, []*gqlerr.Error{gqlerr.New(gqlerr.KindDriverFailure, gqlerr.CodeConnectionOpenFailed, "", err.Error())}
	}
	defer conn.Close()

	resp := &opx.Response{Data: map[string]any{}}

	for _, sel := range op.RootSelections {
		affected, err := e.runMutationSelection(ctx, conn, sel, user, now)
		if err != nil {
			return nil, []*gqlerr.Error{toGQLErr(err)}
		}
		alias := sel.Alias
		if alias == "" {
			alias = sel.Name
		}
		resp.Data[alias] = affected
	}
	return resp, nil
}

func (e *Engine) runMutationSelection(ctx context.Context, conn *sql.Conn, sel *opx.Selection, user opx.UserContext, now time.Time) (int, error) {
	if hasNestedChildren(sel.MutationData, e.model, sel.Name) {
		return e.runTreeSyncMutation(ctx, conn, sel, user, now)
	}
	return e.runFlatMutation(ctx, conn, sel.Name, sel.Mutation, sel.MutationData, user, now)
}

// runFlatMutation runs the policy mutation-transformer chain, applies audit
// columns, renders a single statement and executes it.
func (e *Engine) runFlatMutation(ctx context.Context, conn *sql.Conn, table string, kind opx.MutationKind, data map[string]any, user opx.UserContext, now time.Time) (int, error) {
	pctx := policy.Context{User: user, IsRoot: true, Now: now}

	oq := &plan.ObjectQuery{Table: table, Mutation: kind, MutationData: cloneMap(data)}
	if kind == opx.MUpdate || kind == opx.MDelete {
		oq.Filter = filterFromPrimaryKey(e.model, table, oq.MutationData)
	}
	if err := policy.ApplyMutation(e.policies, oq, pctx); err != nil {
		return 0, err
	}
	policy.ApplyAudit(e.policies, table, oq.Mutation, oq.MutationData, pctx)

	var stmt render.Statement
	var err error
	switch oq.Mutation {
	case opx.MInsert:
		stmt, err = render.RenderInsert(e.d, e.model, table, oq.MutationData)
	case opx.MUpdate:
		stmt, err = render.RenderUpdate(e.d, e.model, table, withoutPrimaryKey(e.model, table, oq.MutationData), oq.Filter)
	case opx.MDelete:
		stmt, err = render.RenderDelete(e.d, e.model, table, oq.Filter)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	res, err := conn.ExecContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return 0, gqlerr.Driver(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, gqlerr.Driver(table, err)
	}
	return int(n), nil
}

// runTreeSyncMutation fetches the currently persisted shape of the
// submitted tree (by primary key, when present), diffs it via tree sync,
// and executes the resulting ordered plan, substituting freshly inserted
// parent ids into dependent child foreign keys.
func (e *Engine) runTreeSyncMutation(ctx context.Context, conn *sql.Conn, sel *opx.Selection, user opx.UserContext, now time.Time) (int, error) {
	persisted, err := e.fetchPersistedTree(ctx, sel)
	if err != nil {
		return 0, err
	}

	ops, err := treesync.Diff(e.model, sel.Name, sel.MutationData, persisted, treesync.DefaultOptions())
	if err != nil {
		return 0, err
	}

	pctx := policy.Context{User: user, Now: now}
	generatedIDs := map[string]any{} // path -> generated primary key value
	affected := 0

	for _, op := range ops {
		data := cloneMap(op.Data)
		for fkCol, parentPath := range op.ForeignKeyAssignments {
			if id, ok := generatedIDs[parentPath]; ok {
				data[fkCol] = id
			}
		}

		kind := treesyncKindToMutation(op.Kind)
		oq := &plan.ObjectQuery{Table: op.Table, Mutation: kind, MutationData: data, Filter: op.Filter}
		nodeCtx := pctx
		nodeCtx.IsRoot = op.Depth == 0
		if err := policy.ApplyMutation(e.policies, oq, nodeCtx); err != nil {
			return affected, err
		}
		policy.ApplyAudit(e.policies, op.Table, oq.Mutation, oq.MutationData, nodeCtx)

		var stmt render.Statement
		switch oq.Mutation {
		case opx.MInsert:
			stmt, err = render.RenderInsert(e.d, e.model, op.Table, oq.MutationData)
		case opx.MUpdate:
			stmt, err = render.RenderUpdate(e.d, e.model, op.Table, oq.MutationData, oq.Filter)
		case opx.MDelete:
			stmt, err = render.RenderDelete(e.d, e.model, op.Table, oq.Filter)
		}
		if err != nil {
			return affected, err
		}

		res, err := conn.ExecContext(ctx, stmt.SQL, stmt.Params...)
		if err != nil {
			return affected, gqlerr.Driver(op.Table, err)
		}
		if op.Kind == treesync.OpInsert {
			if id, err := res.LastInsertId(); err == nil {
				t, _ := e.model.Table(op.Table)
				if t != nil && len(t.PrimaryKeys) == 1 {
					generatedIDs[op.Path] = id
				}
			}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return affected, gqlerr.Driver(op.Table, err)
		}
		affected += int(n)
	}
	return affected, nil
}

// fetchPersistedTree re-runs the same pipeline a query would, scoped to the
// submitted row's primary key, to read back the currently persisted tree
// tree sync diffs against. Returns nil (create) when the submission has no
// primary key yet.
func (e *Engine) fetchPersistedTree(ctx context.Context, sel *opx.Selection) (map[string]any, error) {
	t, ok := e.model.Table(sel.Name)
	if !ok {
		return nil, fmt.Errorf("gqlsql: unknown table %s", sel.Name)
	}
	if len(t.PrimaryKeys) == 0 {
		return nil, nil
	}
	filterInput, ok := filterInputFromPrimaryKey(e.model, sel.Name, sel.MutationData)
	if !ok {
		return nil, nil
	}

	readSel := submissionToReadSelection(e.model, sel.Name, sel.MutationData)
	if readSel == nil {
		return nil, nil
	}
	readSel.Filter = filterInput
	op := &opx.OperationTree{Kind: opx.OpQuery, RootSelections: []*opx.Selection{readSel}}
	resp, _, errs := e.executeQuery(ctx, op, opx.UserContext{})
	if len(errs) > 0 {
		return nil, errs[0]
	}
	rows, _ := resp.Data[readSel.Name].([]any)
	if len(rows) == 0 {
		return nil, nil
	}
	row, _ := rows[0].(map[string]any)
	return row, nil
}

func treesyncKindToMutation(k treesync.OpKind) opx.MutationKind {
	switch k {
	case treesync.OpInsert:
		return opx.MInsert
	case treesync.OpUpdate:
		return opx.MUpdate
	default:
		return opx.MDelete
	}
}

func hasNestedChildren(data map[string]any, schema *sdata.DBModel, table string) bool {
	t, ok := schema.Table(table)
	if !ok {
		return false
	}
	for k := range data {
		if _, ok := t.Column(k); !ok {
			return true
		}
	}
	return false
}

// filterFromPrimaryKey builds the AND of equality predicates over data's
// primary key columns, for rendering a single-row UPDATE/DELETE directly
// without going through the GraphQL filter decoder.
func filterFromPrimaryKey(schema *sdata.DBModel, table string, data map[string]any) *filter.Filter {
	t, ok := schema.Table(table)
	if !ok || len(t.PrimaryKeys) == 0 {
		return nil
	}
	var f *filter.Filter
	for _, pk := range t.PrimaryKeys {
		v, ok := data[pk]
		if !ok || v == nil {
			return nil
		}
		f = filter.And(f, filter.Column(t.DBName, pk, filter.Relation(filter.OpEq, v)))
	}
	return f
}

// filterInputFromPrimaryKey builds the decoded-GraphQL-filter-input shape
// (bare scalar per column sugars to _eq) fetchPersistedTree hands to a read
// selection's Filter field.
func filterInputFromPrimaryKey(schema *sdata.DBModel, table string, data map[string]any) (map[string]any, bool) {
	t, ok := schema.Table(table)
	if !ok || len(t.PrimaryKeys) == 0 {
		return nil, false
	}
	in := make(map[string]any, len(t.PrimaryKeys))
	for _, pk := range t.PrimaryKeys {
		v, ok := data[pk]
		if !ok || v == nil {
			return nil, false
		}
		in[pk] = v
	}
	return in, true
}

func withoutPrimaryKey(schema *sdata.DBModel, table string, data map[string]any) map[string]any {
	t, ok := schema.Table(table)
	if !ok {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, pk := range t.PrimaryKeys {
		delete(out, pk)
	}
	return out
}

// submissionToReadSelection builds a read-only selection shaped after a
// submitted mutation tree's keys, so fetchPersistedTree can read back
// exactly the columns and links tree sync needs to diff against.
func submissionToReadSelection(schema *sdata.DBModel, table string, data map[string]any) *opx.Selection {
	t, ok := schema.Table(table)
	if !ok {
		return nil
	}
	sel := &opx.Selection{Name: t.GraphQLName}
	for k, v := range data {
		if _, ok := t.Column(k); ok {
			sel.ScalarFields = append(sel.ScalarFields, k)
			continue
		}
		link, ok := lookupLink(t, k)
		if !ok {
			continue
		}
		target := link.ParentTable
		if link.Kind == sdata.LinkMulti {
			target = link.ChildTable
		}
		rows := asMapSlice(v)
		if len(rows) == 0 {
			continue
		}
		child := submissionToReadSelection(schema, target, rows[0])
		if child == nil {
			continue
		}
		child.Name = k
		sel.Children = append(sel.Children, child)
	}
	return sel
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

func asMapSlice(v any) []map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return []map[string]any{x}
	case []any:
		out := make([]map[string]any, 0, len(x))
		for _, e := range x {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toGQLErr(err error) *gqlerr.Error {
	if ge, ok := err.(*gqlerr.Error); ok {
		return ge
	}
	return gqlerr.Internal("", err.Error())
}
