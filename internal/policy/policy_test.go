package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/policy"
)

type tenantFilter struct {
	priority int
	claim    string
}

func (f tenantFilter) Priority() int                                  { return f.priority }
func (f tenantFilter) AppliesTo(table string, ctx policy.Context) bool { return ctx.IsRoot }
func (f tenantFilter) AdditionalFilter(table string, ctx policy.Context) (*filter.Filter, error) {
	tenant, _ := ctx.User.Get("tenant_id")
	return filter.Column(table, f.claim, filter.Relation(filter.OpEq, tenant)), nil
}

func TestApplyFiltersOnlyTouchesRootByDefault(t *testing.T) {
	r := policy.NewRegistry()
	r.AddFilterTransformer(tenantFilter{priority: 1, claim: "tenant_id"})

	child := &plan.ObjectQuery{Table: "items", IsLink: true}
	root := &plan.ObjectQuery{Table: "orders", Links: []*plan.ObjectQuery{child}}

	ctx := policy.Context{User: opx.UserContext{"tenant_id": "acme"}}
	require.NoError(t, policy.ApplyFilters(r, root, ctx))

	require.NotNil(t, root.Filter)
	assert.Nil(t, child.Filter)
}

func TestApplyFiltersRecursesIntoLinks(t *testing.T) {
	r := policy.NewRegistry()
	// applies at every node, root or not, to prove the recursion reaches
	// every link.
	r.AddFilterTransformer(alwaysFilter{})

	child := &plan.ObjectQuery{Table: "items", IsLink: true}
	root := &plan.ObjectQuery{Table: "orders", Links: []*plan.ObjectQuery{child}}

	require.NoError(t, policy.ApplyFilters(r, root, policy.Context{}))
	require.NotNil(t, root.Filter)
	require.NotNil(t, child.Filter)
}

type alwaysFilter struct{}

func (alwaysFilter) Priority() int { return 0 }
func (alwaysFilter) AppliesTo(table string, ctx policy.Context) bool { return true }
func (alwaysFilter) AdditionalFilter(table string, ctx policy.Context) (*filter.Filter, error) {
	return filter.Relation(filter.OpEq, 1), nil
}

type softDeleteMutation struct{}

func (softDeleteMutation) Priority() int { return 0 }
func (softDeleteMutation) AppliesTo(table string, kind opx.MutationKind, ctx policy.Context) bool {
	return kind == opx.MDelete
}
func (softDeleteMutation) Transform(table string, kind opx.MutationKind, data map[string]any, ctx policy.Context) (policy.MutationResult, error) {
	return policy.MutationResult{
		Kind:             opx.MUpdate,
		Data:             map[string]any{"deleted_at": ctx.Now},
		AdditionalFilter: filter.Column(table, "deleted_at", filter.Relation(filter.OpIsNull, true)),
	}, nil
}

func TestApplyMutationRewritesDeleteToSoftUpdate(t *testing.T) {
	r := policy.NewRegistry()
	r.AddMutationTransformer(softDeleteMutation{})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	oq := &plan.ObjectQuery{
		Table:        "orders",
		Mutation:     opx.MDelete,
		MutationData: map[string]any{"id": 5},
		Filter:       filter.Column("orders", "id", filter.Relation(filter.OpEq, 5)),
	}

	require.NoError(t, policy.ApplyMutation(r, oq, policy.Context{Now: now}))
	assert.Equal(t, opx.MUpdate, oq.Mutation)
	assert.Equal(t, now, oq.MutationData["deleted_at"])
	// the node's own pre-existing filter (its primary-key predicate) is
	// preserved, ANDed with whatever the transformer added.
	require.NotNil(t, oq.Filter)
	assert.Equal(t, filter.KindLogical, oq.Filter.Kind)
}

func TestApplyMutationNoneIsNoop(t *testing.T) {
	r := policy.NewRegistry()
	r.AddMutationTransformer(softDeleteMutation{})

	oq := &plan.ObjectQuery{Table: "orders", Mutation: opx.MNone}
	require.NoError(t, policy.ApplyMutation(r, oq, policy.Context{}))
	assert.Equal(t, opx.MNone, oq.Mutation)
}

type auditModule struct{ field string }

func (a auditModule) Priority() int { return 0 }
func (a auditModule) Apply(table string, kind opx.MutationKind, data map[string]any, ctx policy.Context) {
	data[a.field] = ctx.Now
}

func TestApplyAuditRunsRegisteredModule(t *testing.T) {
	r := policy.NewRegistry()
	r.AddAuditModule(auditModule{field: "updated_at"})

	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	data := map[string]any{"name": "widget"}
	policy.ApplyAudit(r, "products", opx.MUpdate, data, policy.Context{Now: now})

	assert.Equal(t, now, data["updated_at"])
}

func TestRegistrySortsByPriority(t *testing.T) {
	r := policy.NewRegistry()
	var order []int
	r.AddFilterTransformer(orderRecordingFilter{priority: 5, record: &order})
	r.AddFilterTransformer(orderRecordingFilter{priority: 1, record: &order})
	r.AddFilterTransformer(orderRecordingFilter{priority: 3, record: &order})

	root := &plan.ObjectQuery{Table: "orders"}
	require.NoError(t, policy.ApplyFilters(r, root, policy.Context{}))
	assert.Equal(t, []int{1, 3, 5}, order)
}

type orderRecordingFilter struct {
	priority int
	record   *[]int
}

func (f orderRecordingFilter) Priority() int { return f.priority }
func (f orderRecordingFilter) AppliesTo(table string, ctx policy.Context) bool { return true }
func (f orderRecordingFilter) AdditionalFilter(table string, ctx policy.Context) (*filter.Filter, error) {
	*f.record = append(*f.record, f.priority)
	return nil, nil
}
