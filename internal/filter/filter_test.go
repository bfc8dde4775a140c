package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/sdata"
)

func TestAndNilSafety(t *testing.T) {
	r := filter.Relation(filter.OpEq, 1)
	assert.Nil(t, filter.And(nil, nil))
	assert.Same(t, r, filter.And(r, nil))
	assert.Same(t, r, filter.And(nil, r))

	both := filter.And(r, r)
	require.Equal(t, filter.KindLogical, both.Kind)
	assert.Equal(t, filter.LogAnd, both.LogOp)
}

func TestInvertRelationOps(t *testing.T) {
	cases := []struct{ op, want filter.RelOp }{
		{filter.OpEq, filter.OpNeq},
		{filter.OpNeq, filter.OpEq},
		{filter.OpLt, filter.OpGte},
		{filter.OpLte, filter.OpGt},
		{filter.OpGt, filter.OpLte},
		{filter.OpGte, filter.OpLt},
		{filter.OpIn, filter.OpNin},
		{filter.OpNin, filter.OpIn},
	}
	for _, c := range cases {
		got := filter.Invert(filter.Relation(c.op, 1))
		assert.Equal(t, c.want, got.Op, "invert(%s)", c.op)
	}
}

func TestInvertDeMorgan(t *testing.T) {
	a := filter.Column("orders", "status", filter.Relation(filter.OpEq, "open"))
	b := filter.Column("orders", "total", filter.Relation(filter.OpGt, 100))
	and := filter.Logical(filter.LogAnd, a, b)

	inv := filter.Invert(and)
	require.Equal(t, filter.KindLogical, inv.Kind)
	assert.Equal(t, filter.LogOr, inv.LogOp)
	require.Len(t, inv.Branches, 2)
	assert.Equal(t, filter.OpNeq, inv.Branches[0].Next.Op)
	assert.Equal(t, filter.OpLte, inv.Branches[1].Next.Op)
}

func TestInvertNil(t *testing.T) {
	assert.Nil(t, filter.Invert(nil))
}

func TestWalkVisitsEveryNode(t *testing.T) {
	f := filter.Logical(filter.LogAnd,
		filter.Column("orders", "status", filter.Relation(filter.OpEq, "open")),
		filter.CrossTable("customer", filter.Column("customers", "active", filter.Relation(filter.OpEq, true))),
	)

	var kinds []filter.Kind
	filter.Walk(f, func(n *filter.Filter) { kinds = append(kinds, n.Kind) })
	assert.Equal(t, []filter.Kind{
		filter.KindLogical, filter.KindColumn, filter.KindRelation,
		filter.KindCrossTable, filter.KindColumn, filter.KindRelation,
	}, kinds)
}

// testSchema is a minimal filter.Schema stand-in, independent of sdata.
type testSchema struct {
	columns map[string]bool
	links   map[string]sdata.Link
}

func (s testSchema) ColumnExists(table, name string) bool { return s.columns[table+"."+name] }
func (s testSchema) Link(table, name string) (sdata.Link, bool) {
	l, ok := s.links[table+"."+name]
	return l, ok
}

func ordersSchema() testSchema {
	return testSchema{
		columns: map[string]bool{
			"orders.status": true, "orders.total": true, "orders.id": true,
			"customers.active": true,
		},
		links: map[string]sdata.Link{
			"orders.customer": {Kind: sdata.LinkSingle, ParentTable: "customers", ChildTable: "orders"},
		},
	}
}

func TestBuildSimpleEquality(t *testing.T) {
	f, err := filter.Build(ordersSchema(), "orders", map[string]any{"status": "open"})
	require.NoError(t, err)
	require.Equal(t, filter.KindColumn, f.Kind)
	assert.Equal(t, "status", f.Column)
	assert.Equal(t, filter.OpEq, f.Next.Op)
	assert.Equal(t, "open", f.Next.Value)
}

func TestBuildEqNullBecomesIsNull(t *testing.T) {
	f, err := filter.Build(ordersSchema(), "orders", map[string]any{"status": map[string]any{"_eq": nil}})
	require.NoError(t, err)
	assert.Equal(t, filter.OpIsNull, f.Next.Op)
	assert.Equal(t, true, f.Next.Value)
}

func TestBuildAndOr(t *testing.T) {
	f, err := filter.Build(ordersSchema(), "orders", map[string]any{
		"and": []any{
			map[string]any{"status": "open"},
			map[string]any{"total": map[string]any{"_gt": 100}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, filter.KindLogical, f.Kind)
	assert.Equal(t, filter.LogAnd, f.LogOp)
	assert.Len(t, f.Branches, 2)
}

func TestBuildCrossTableLink(t *testing.T) {
	f, err := filter.Build(ordersSchema(), "orders", map[string]any{
		"customer": map[string]any{"active": true},
	})
	require.NoError(t, err)
	require.Equal(t, filter.KindCrossTable, f.Kind)
	assert.Equal(t, "customer", f.LinkName)
	assert.Equal(t, "active", f.Sub.Column)
}

func TestBuildUnknownColumnRejected(t *testing.T) {
	_, err := filter.Build(ordersSchema(), "orders", map[string]any{"nope": 1})
	assert.Error(t, err)
}

func TestBuildInRequiresArray(t *testing.T) {
	_, err := filter.Build(ordersSchema(), "orders", map[string]any{
		"status": map[string]any{"_in": "open"},
	})
	assert.Error(t, err)

	f, err := filter.Build(ordersSchema(), "orders", map[string]any{
		"status": map[string]any{"_in": []any{"open", "closed"}},
	})
	require.NoError(t, err)
	assert.Equal(t, filter.OpIn, f.Next.Op)
}

func TestBuildEmptyObjectRejected(t *testing.T) {
	_, err := filter.Build(ordersSchema(), "orders", map[string]any{})
	assert.Error(t, err)
}
