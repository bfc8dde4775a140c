package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/render"
	"github.com/vertagql/gqlsql/internal/sdata"
)

func ordersSchema(t *testing.T) *sdata.DBModel {
	t.Helper()
	b := sdata.NewBuilder()
	b.AddTable("", "orders", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "status", DataType: "text"},
		{Name: "total", DataType: "numeric"},
	})
	return b.Build()
}

func TestRenderSelectBasic(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	oq := &plan.ObjectQuery{
		Table:         "orders",
		ScalarColumns: []string{"id", "status"},
		Path:          "orders",
		Filter:        filter.Column("orders", "status", filter.Relation(filter.OpEq, "open")),
	}

	stmt, err := render.RenderSelect(d, schema, oq, nil, "")
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `SELECT "orders"."id", "orders"."status" FROM "orders"`)
	assert.Contains(t, stmt.SQL, "WHERE")
	assert.Equal(t, []any{"open"}, stmt.Params)
}

func TestRenderSelectPagination(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	offset, limit := 10, 5
	oq := &plan.ObjectQuery{
		Table:         "orders",
		ScalarColumns: []string{"id"},
		Path:          "orders",
		Offset:        &offset,
		Limit:         &limit,
	}

	stmt, err := render.RenderSelect(d, schema, oq, nil, "")
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LIMIT 5 OFFSET 10")
}

func TestRenderCount(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	oq := &plan.ObjectQuery{Table: "orders", Path: "orders"}
	stmt, err := render.RenderCount(d, schema, oq)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "orders"`, stmt.SQL)
	assert.Equal(t, "orders=>count", stmt.Label)
}

func TestRenderInsertSortsColumnsDeterministically(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	stmt, err := render.RenderInsert(d, schema, "orders", map[string]any{
		"status": "open",
		"id":     1,
		"total":  9.5,
	})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "orders" ("id", "status", "total") VALUES ($1, $2, $3)`, stmt.SQL)
	assert.Equal(t, []any{1, "open", 9.5}, stmt.Params)
}

func TestRenderUpdateWithFilter(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	f := filter.Column("orders", "id", filter.Relation(filter.OpEq, 5))
	stmt, err := render.RenderUpdate(d, schema, "orders", map[string]any{"status": "closed"}, f)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `UPDATE "orders" SET "status" = $1`)
	assert.Contains(t, stmt.SQL, "WHERE")
	assert.Equal(t, []any{"closed", 5}, stmt.Params)
}

func TestRenderDeleteWithoutFilterHasNoWhere(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	stmt, err := render.RenderDelete(d, schema, "orders", nil)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "orders"`, stmt.SQL)
}

func TestRenderSelectUnknownTableErrors(t *testing.T) {
	schema := ordersSchema(t)
	d := dialect.Lookup("postgres")

	_, err := render.RenderSelect(d, schema, &plan.ObjectQuery{Table: "nope"}, nil, "")
	assert.Error(t, err)
}
