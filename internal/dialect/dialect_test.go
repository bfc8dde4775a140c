package dialect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/dialect"
)

func TestLookupRegistersFourDialects(t *testing.T) {
	for _, name := range []string{"postgres", "mysql", "mariadb", "sqlite", "sqlserver"} {
		d := dialect.Lookup(name)
		require.NotNilf(t, d, "dialect %q should be registered", name)
		assert.NotNil(t, d.QuoteIdent)
		assert.NotNil(t, d.ParamPlaceholder)
		assert.NotNil(t, d.TypeMapper)
	}
}

func TestLookupUnknownReturnsNil(t *testing.T) {
	assert.Nil(t, dialect.Lookup("db2"))
}

func TestQuoteIdentPerDialect(t *testing.T) {
	cases := []struct {
		dialect, in, want string
	}{
		{"postgres", `my"table`, `"my""table"`},
		{"mysql", "my`table", "`my``table`"},
		{"sqlite", `my"table`, `"my""table"`},
		{"sqlserver", "my]table", "[my]]table]"},
	}
	for _, c := range cases {
		d := dialect.Lookup(c.dialect)
		require.NotNil(t, d)
		assert.Equal(t, c.want, d.QuoteIdent(c.in))
	}
}

func TestParamPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", dialect.Lookup("postgres").ParamPlaceholder(0))
	assert.Equal(t, "$2", dialect.Lookup("postgres").ParamPlaceholder(1))
	assert.Equal(t, "?", dialect.Lookup("mysql").ParamPlaceholder(0))
	assert.Equal(t, "?", dialect.Lookup("sqlite").ParamPlaceholder(3))
	assert.Equal(t, "@p1", dialect.Lookup("sqlserver").ParamPlaceholder(0))
}

func TestRenderPaginationPostgres(t *testing.T) {
	d := dialect.Lookup("postgres")
	offset, limit := 10, 5
	assert.Equal(t, " LIMIT 5 OFFSET 10", d.RenderPagination(&offset, &limit, true))
	assert.Equal(t, "", d.RenderPagination(nil, nil, true))
}

func TestRenderPaginationMySQLRequiresLimitForOffset(t *testing.T) {
	d := dialect.Lookup("mysql")
	offset := 10
	got := d.RenderPagination(&offset, nil, true)
	assert.Contains(t, got, "OFFSET 10")
	assert.Contains(t, got, "LIMIT")
}

func TestRenderPaginationSQLServerFetchNext(t *testing.T) {
	d := dialect.Lookup("sqlserver")
	offset, limit := 0, 20
	got := d.RenderPagination(&offset, &limit, true)
	assert.Equal(t, " OFFSET 0 ROWS FETCH NEXT 20 ROWS ONLY", got)
}

func TestNeedsOrderBySentinel(t *testing.T) {
	assert.True(t, dialect.NeedsOrderBySentinel("sqlserver"))
	assert.False(t, dialect.NeedsOrderBySentinel("postgres"))
	assert.False(t, dialect.NeedsOrderBySentinel("mysql"))
	assert.False(t, dialect.NeedsOrderBySentinel("sqlite"))
}

func TestTypeMapperKnownAndUnknown(t *testing.T) {
	pg := dialect.Lookup("postgres").TypeMapper
	m, err := pg.Map("integer")
	require.NoError(t, err)
	assert.Equal(t, dialect.CatInt, m.Category)

	_, err = pg.Map("not-a-real-type")
	assert.Error(t, err)
}

func TestMariaDBInheritsMySQLShape(t *testing.T) {
	mysql := dialect.Lookup("mysql")
	maria := dialect.Lookup("mariadb")
	require.NotNil(t, maria)
	assert.Equal(t, "mariadb", maria.Name)
	assert.Equal(t, mysql.QuoteIdent("x`y"), maria.QuoteIdent("x`y"))
}
