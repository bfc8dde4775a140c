package policy

import (
	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// SoftDeleteFilter adds `col IS NULL` (priority 100, applied last) when
// `soft-delete: col` table metadata is set, unless the user claims set
// include_deleted, or include_deleted:<table>, to true. <table> is the
// table name the transformer is called with; schema-qualified names are
// not matched.
type SoftDeleteFilter struct {
	Model *sdata.DBModel
}

func (SoftDeleteFilter) Priority() int { return 100 }

func (f SoftDeleteFilter) column(table string) (string, bool) {
	t, ok := f.Model.Table(table)
	if !ok {
		return "", false
	}
	col, ok := t.Metadata["soft-delete"]
	return col, ok
}

func (f SoftDeleteFilter) AppliesTo(table string, ctx Context) bool {
	if _, ok := f.column(table); !ok {
		return false
	}
	return !includeDeleted(ctx, table)
}

func includeDeleted(ctx Context, table string) bool {
	if v, ok := ctx.User.Get("include_deleted"); ok {
		if b, _ := v.(bool); b {
			return true
		}
	}
	if v, ok := ctx.User.Get("include_deleted:" + table); ok {
		if b, _ := v.(bool); b {
			return true
		}
	}
	return false
}

func (f SoftDeleteFilter) AdditionalFilter(table string, ctx Context) (*filter.Filter, error) {
	col, _ := f.column(table)
	return filter.Column(table, col, filter.Relation(filter.OpIsNull, true)), nil
}

// SoftDeleteMutation converts Delete into Update setting the deletion
// timestamp (and deletion user, if configured), and appends
// `deleted_at IS NULL` to both Update and the rewritten Delete-as-Update so
// already-deleted rows are never re-touched (§4.5).
type SoftDeleteMutation struct {
	Model *sdata.DBModel
}

func (SoftDeleteMutation) Priority() int { return 100 }

func (m SoftDeleteMutation) column(table string) (string, bool) {
	t, ok := m.Model.Table(table)
	if !ok {
		return "", false
	}
	col, ok := t.Metadata["soft-delete"]
	return col, ok
}

func (m SoftDeleteMutation) AppliesTo(table string, kind opx.MutationKind, ctx Context) bool {
	if kind != opx.MDelete && kind != opx.MUpdate {
		return false
	}
	_, ok := m.column(table)
	return ok
}

func (m SoftDeleteMutation) Transform(table string, kind opx.MutationKind, data map[string]any, ctx Context) (MutationResult, error) {
	col, _ := m.column(table)
	notDeleted := filter.Column(table, col, filter.Relation(filter.OpIsNull, true))

	if kind == opx.MUpdate {
		return MutationResult{Kind: kind, Data: data, AdditionalFilter: notDeleted}, nil
	}

	// Delete -> Update.
	t, _ := m.Model.Table(table)
	newData := map[string]any{}
	for k, v := range data {
		newData[k] = v
	}
	newData[col] = ctx.Now.UTC()
	if byCol, ok := t.Metadata["soft-delete-by"]; ok {
		if v, ok := ctx.User.Get(userAuditKey(m.Model)); ok {
			newData[byCol] = v
		}
	}
	return MutationResult{Kind: opx.MUpdate, Data: newData, AdditionalFilter: notDeleted}, nil
}

func userAuditKey(model *sdata.DBModel) string {
	if v, ok := model.Metadata["user-audit-key"]; ok {
		return v
	}
	return "user_id"
}
