package sdata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/sdata"
)

func buildOrdersModel(t *testing.T) *sdata.DBModel {
	t.Helper()
	b := sdata.NewBuilder()
	b.AddTable("", "customers", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "name", DataType: "text"},
	})
	b.AddTable("", "orders", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "customer_id", DataType: "int"},
		{Name: "total", DataType: "numeric"},
	})
	b.AddForeignKey("", "orders", []string{"customer_id"}, "", "customers", []string{"id"}, "orders_customer_id_fkey")
	return b.Build()
}

func TestTableLookupCaseInsensitive(t *testing.T) {
	m := buildOrdersModel(t)
	_, ok := m.Table("Orders")
	assert.True(t, ok)
	_, ok = m.Table("ORDERS")
	assert.True(t, ok)
	_, ok = m.Table("missing")
	assert.False(t, ok)
}

func TestColumnLookup(t *testing.T) {
	m := buildOrdersModel(t)
	tbl, ok := m.Table("orders")
	require.True(t, ok)

	col, ok := tbl.Column("Total")
	require.True(t, ok)
	assert.Equal(t, "numeric", col.DataType)

	_, ok = tbl.Column("nope")
	assert.False(t, ok)
}

func TestForeignKeyProducesSingleAndMultiLinks(t *testing.T) {
	m := buildOrdersModel(t)

	orders, ok := m.Table("orders")
	require.True(t, ok)
	link, ok := orders.SingleLinks["customer"]
	require.True(t, ok)
	assert.Equal(t, sdata.LinkSingle, link.Kind)
	assert.Equal(t, "customers", link.ParentTable)
	assert.Equal(t, []string{"customer_id"}, link.ChildColumns)

	customers, ok := m.Table("customers")
	require.True(t, ok)
	multi, ok := customers.MultiLinks["orders"]
	require.True(t, ok)
	assert.Equal(t, sdata.LinkMulti, multi.Kind)
	assert.Equal(t, "orders", multi.ChildTable)
}

func TestDroppedLinkWhenParentTableMissing(t *testing.T) {
	b := sdata.NewBuilder()
	b.AddTable("", "orders", []sdata.Column{{Name: "id", DataType: "int", IsPrimaryKey: true}})
	b.AddForeignKey("", "orders", []string{"customer_id"}, "", "customers", []string{"id"}, "fk")

	var warned bool
	b.Warnf = func(format string, args ...any) { warned = true }

	m := b.Build()
	orders, ok := m.Table("orders")
	require.True(t, ok)
	assert.Empty(t, orders.SingleLinks)
	assert.True(t, warned)
}

func TestDBModelSatisfiesFilterSchema(t *testing.T) {
	m := buildOrdersModel(t)

	assert.True(t, m.ColumnExists("orders", "total"))
	assert.False(t, m.ColumnExists("orders", "nope"))
	assert.False(t, m.ColumnExists("missing-table", "id"))

	link, ok := m.Link("orders", "customer")
	assert.True(t, ok)
	assert.Equal(t, "customers", link.ParentTable)

	_, ok = m.Link("orders", "nonexistent")
	assert.False(t, ok)
}

func TestLinkNameDefaultsToSingularParentName(t *testing.T) {
	b := sdata.NewBuilder()
	b.AddTable("", "customers", []sdata.Column{{Name: "id", DataType: "int", IsPrimaryKey: true}})
	b.AddTable("", "orders", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "customer_id", DataType: "int"},
	})
	b.AddForeignKey("", "orders", []string{"customer_id"}, "", "customers", []string{"id"}, "orders_customer_id_fkey")

	m := b.Build()
	orders, ok := m.Table("orders")
	require.True(t, ok)
	_, ok = orders.SingleLinks["customer"]
	assert.True(t, ok, "default singular link name derives from parent table name")
}

func TestTablesReturnsSortedOrder(t *testing.T) {
	b := sdata.NewBuilder()
	b.AddTable("", "zebra", []sdata.Column{{Name: "id", DataType: "int"}})
	b.AddTable("", "alpha", []sdata.Column{{Name: "id", DataType: "int"}})
	m := b.Build()

	tables := m.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "alpha", tables[0].DBName)
	assert.Equal(t, "zebra", tables[1].DBName)
}
