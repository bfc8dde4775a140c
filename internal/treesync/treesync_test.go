package treesync_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/sdata"
	"github.com/vertagql/gqlsql/internal/treesync"
)

func buildOrderSchema(t *testing.T) *sdata.DBModel {
	t.Helper()
	b := sdata.NewBuilder()
	b.AddTable("", "order", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "customer_name", DataType: "text"},
	})
	b.AddTable("", "items", []sdata.Column{
		{Name: "id", DataType: "int", IsPrimaryKey: true},
		{Name: "order_id", DataType: "int"},
		{Name: "sku", DataType: "text"},
	})
	b.AddForeignKey("", "items", []string{"order_id"}, "", "order", []string{"id"}, "items_order_id_fkey")
	return b.Build()
}

// TestDiffNewOrderWithOrphan mirrors the "Tree sync" end-to-end scenario: a
// new order with one new item and one persisted item absent from the
// submission, which should be deleted as an orphan.
func TestDiffNewOrderWithOrphan(t *testing.T) {
	schema := buildOrderSchema(t)

	submitted := map[string]any{
		"customer_name": "Ada",
		"items": []any{
			map[string]any{"sku": "WIDGET-1"},
		},
	}
	persisted := map[string]any{
		"id":            1,
		"customer_name": "Ada",
		"items": []any{
			map[string]any{"id": 9, "order_id": 1, "sku": "OLD-SKU"},
		},
	}

	ops, err := treesync.Diff(schema, "order", submitted, persisted, treesync.DefaultOptions())
	require.NoError(t, err)

	var inserts, deletes int
	var sawOrderInsert, sawItemInsert, sawOrphanDelete bool
	for _, op := range ops {
		switch op.Kind {
		case treesync.OpInsert:
			inserts++
			if op.Table == "order" {
				sawOrderInsert = true
				assert.Equal(t, 0, op.Depth)
			}
			if op.Table == "items" {
				sawItemInsert = true
				assert.Equal(t, 1, op.Depth)
				assert.Equal(t, "order", op.ForeignKeyAssignments["order_id"])
			}
		case treesync.OpDelete:
			deletes++
			sawOrphanDelete = true
			assert.Equal(t, "items", op.Table)
		}
	}

	assert.True(t, sawOrderInsert)
	assert.True(t, sawItemInsert)
	assert.True(t, sawOrphanDelete)
	assert.Equal(t, 2, inserts)
	assert.Equal(t, 1, deletes)

	// Ordering: every insert precedes every delete (ascending-depth inserts
	// before descending-depth deletes).
	lastInsertIdx, firstDeleteIdx := -1, -1
	for i, op := range ops {
		if op.Kind == treesync.OpInsert {
			lastInsertIdx = i
		}
		if op.Kind == treesync.OpDelete && firstDeleteIdx == -1 {
			firstDeleteIdx = i
		}
	}
	assert.Less(t, lastInsertIdx, firstDeleteIdx)
}

// TestDiffUpdateOnlyWhenChanged verifies that an update candidate (all
// primary keys present) produces no Op when nothing actually differs from
// the persisted row.
func TestDiffUpdateOnlyWhenChanged(t *testing.T) {
	schema := buildOrderSchema(t)

	submitted := map[string]any{"id": 1, "customer_name": "Ada"}
	persisted := map[string]any{"id": 1, "customer_name": "Ada"}

	ops, err := treesync.Diff(schema, "order", submitted, persisted, treesync.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, ops)

	submitted["customer_name"] = "Grace"
	ops, err = treesync.Diff(schema, "order", submitted, persisted, treesync.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, treesync.OpUpdate, ops[0].Kind)
	assert.Equal(t, "Grace", ops[0].Data["customer_name"])
	assert.NotContains(t, ops[0].Data, "id")
}

// TestDiffMaxDepthTruncation verifies the silent-truncation-beyond-max-depth
// rule: a submission nested past opts.MaxDepth produces no operations for
// the truncated subtree.
func TestDiffMaxDepthTruncation(t *testing.T) {
	schema := buildOrderSchema(t)

	submitted := map[string]any{
		"customer_name": "Ada",
		"items":         []any{map[string]any{"sku": "WIDGET-1"}},
	}

	opts := treesync.Options{MaxDepth: 0, DeleteOrphans: true}
	ops, err := treesync.Diff(schema, "order", submitted, nil, opts)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "order", ops[0].Table)
}
