package opx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vertagql/gqlsql/internal/opx"
)

func TestUserContextGet(t *testing.T) {
	u := opx.UserContext{"tenant_id": "acme", "role": "admin"}

	v, ok := u.Get("tenant_id")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)

	_, ok = u.Get("missing")
	assert.False(t, ok)
}

func TestOperationKindZeroValueIsQuery(t *testing.T) {
	var k opx.OperationKind
	assert.Equal(t, opx.OpQuery, k)
}

func TestMutationKindZeroValueIsNone(t *testing.T) {
	sel := &opx.Selection{Name: "orders"}
	assert.Equal(t, opx.MNone, sel.Mutation)
}

func TestSelectionTreeShape(t *testing.T) {
	child := &opx.Selection{Name: "items", ScalarFields: []string{"sku"}}
	root := &opx.Selection{
		Name:         "orders",
		ScalarFields: []string{"id"},
		Children:     []*opx.Selection{child},
		Sort:         []opx.SortKey{{Column: "id", Direction: opx.Desc}},
	}

	assert.Len(t, root.Children, 1)
	assert.Equal(t, "items", root.Children[0].Name)
	assert.Equal(t, opx.Desc, root.Sort[0].Direction)
}
