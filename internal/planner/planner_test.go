package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/planner"
	"github.com/vertagql/gqlsql/internal/sdata"
)

func buildSchema(t *testing.T) *sdata.DBModel {
	t.Helper()
	b := sdata.NewBuilder()
	b.AddTable("", "categories", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
	})
	b.AddTable("", "products", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "category_id", DataType: "int"},
		{Name: "name", DataType: "text"},
	})
	b.AddForeignKey("", "products", []string{"category_id"}, "", "categories", []string{"id"}, "products_category_id_fkey")
	return b.Build()
}

func TestCompileSingleRoot(t *testing.T) {
	schema := buildSchema(t)
	d := dialect.Lookup("postgres")

	root := &plan.ObjectQuery{Table: "categories", Path: "categories"}
	p, err := planner.Compile(d, schema, []*plan.ObjectQuery{root})
	require.NoError(t, err)
	assert.Equal(t, []string{"categories"}, p.Labels)
	assert.Contains(t, p.Statements["categories"].SQL, "categories")
}

func TestCompileIncludesCountOnlyAtRoot(t *testing.T) {
	schema := buildSchema(t)
	d := dialect.Lookup("postgres")

	link := &plan.ObjectQuery{
		Table: "products", Path: "categories=>products", IsLink: true, IncludeTotal: true,
	}
	root := &plan.ObjectQuery{
		Table: "categories", Path: "categories", IncludeTotal: true,
		Links: []*plan.ObjectQuery{link},
	}
	require.NoError(t, plan.ConnectLinks(schema, root))

	p, err := planner.Compile(d, schema, []*plan.ObjectQuery{root})
	require.NoError(t, err)

	_, hasRootCount := p.Statements["categories=>count"]
	assert.True(t, hasRootCount)
	_, hasLinkCount := p.Statements["categories=>products=>count"]
	assert.False(t, hasLinkCount, "IncludeTotal on a link node is not honored, only root nodes get a count statement")
}

func TestCompileNestedLinkCorrelatesToParentSQL(t *testing.T) {
	schema := buildSchema(t)
	d := dialect.Lookup("postgres")

	link := &plan.ObjectQuery{Table: "products", Path: "categories=>products", IsLink: true}
	root := &plan.ObjectQuery{Table: "categories", Path: "categories", Links: []*plan.ObjectQuery{link}}
	require.NoError(t, plan.ConnectLinks(schema, root))

	p, err := planner.Compile(d, schema, []*plan.ObjectQuery{root})
	require.NoError(t, err)

	childStmt := p.Statements["categories=>products"]
	assert.Contains(t, childStmt.SQL, "IN (SELECT")
	assert.Contains(t, childStmt.SQL, `FROM "categories"`)
}

func TestCompilePerParentLimitUsesWindowFunction(t *testing.T) {
	schema := buildSchema(t)
	d := dialect.Lookup("postgres")

	limit := 2
	link := &plan.ObjectQuery{Table: "products", Path: "categories=>products", IsLink: true, Limit: &limit}
	root := &plan.ObjectQuery{Table: "categories", Path: "categories", Links: []*plan.ObjectQuery{link}}
	require.NoError(t, plan.ConnectLinks(schema, root))

	p, err := planner.Compile(d, schema, []*plan.ObjectQuery{root})
	require.NoError(t, err)

	childStmt := p.Statements["categories=>products"]
	assert.Contains(t, childStmt.SQL, "ROW_NUMBER() OVER (PARTITION BY")
	assert.Contains(t, childStmt.SQL, "__rn <= 2")
}

func TestCompileUnknownTableErrors(t *testing.T) {
	schema := buildSchema(t)
	d := dialect.Lookup("postgres")

	root := &plan.ObjectQuery{Table: "nope", Path: "nope"}
	_, err := planner.Compile(d, schema, []*plan.ObjectQuery{root})
	assert.Error(t, err)
}
