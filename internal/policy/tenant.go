package policy

import (
	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// TenantFilter implements tenant isolation (priority 0): reads the
// `tenant-filter` table metadata naming the FK column, pulls the tenant id
// from the caller context (default claim key `tenant_id`, overridable via
// model metadata `tenant-context-key`).
type TenantFilter struct {
	Model *sdata.DBModel
}

func (TenantFilter) Priority() int { return 0 }

func (f TenantFilter) AppliesTo(table string, ctx Context) bool {
	t, ok := f.Model.Table(table)
	if !ok {
		return false
	}
	_, has := t.Metadata["tenant-filter"]
	return has
}

func (f TenantFilter) AdditionalFilter(table string, ctx Context) (*filter.Filter, error) {
	t, _ := f.Model.Table(table)
	col := t.Metadata["tenant-filter"]

	claimKey := "tenant_id"
	if v, ok := f.Model.Metadata["tenant-context-key"]; ok {
		claimKey = v
	}
	if v, ok := t.Metadata["tenant-context-key"]; ok {
		claimKey = v
	}

	val, ok := ctx.User.Get(claimKey)
	if !ok || val == nil {
		return nil, ErrTenantRequired(table, claimKey)
	}
	return filter.Column(table, col, filter.Relation(filter.OpEq, val)), nil
}
