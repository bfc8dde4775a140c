package policy

import (
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// ColumnAudit overwrites columns flagged with `populate` metadata on
// INSERT/UPDATE/DELETE: created-on/updated-on/deleted-on get the request's
// single captured UTC timestamp (ctx.Now, captured once per mutation so
// created-on == updated-on on insert, §5); created-by/updated-by/deleted-by
// get the claim named by model-level `user-audit-key`, left untouched (not
// errored) when that claim is absent, so anonymous inserts stay valid.
// Client-supplied values for these columns are discarded.
type ColumnAudit struct {
	Model *sdata.DBModel

	// WarnOnOverwrite, when set, is called once per column whose
	// client-supplied value is discarded in favor of the audit-computed
	// one, instead of silently dropping it. Resolves the spec's silent-
	// overwrite Open Question as an opt-in: default nil keeps the original
	// silent behavior.
	WarnOnOverwrite func(table, column string)
}

func (ColumnAudit) Priority() int { return 0 }

func (a ColumnAudit) Apply(table string, kind opx.MutationKind, data map[string]any, ctx Context) {
	t, ok := a.Model.Table(table)
	if !ok {
		return
	}
	claimKey := userAuditKey(a.Model)

	set := func(col string, v any) {
		if _, had := data[col]; had && a.WarnOnOverwrite != nil {
			a.WarnOnOverwrite(table, col)
		}
		data[col] = v
	}

	for _, c := range t.Columns {
		populate, ok := c.Metadata["populate"]
		if !ok {
			continue
		}
		switch populate {
		case "created-on":
			if kind == opx.MInsert {
				set(c.Name, ctx.Now.UTC())
			}
		case "updated-on":
			if kind == opx.MInsert || kind == opx.MUpdate {
				set(c.Name, ctx.Now.UTC())
			}
		case "deleted-on":
			if kind == opx.MDelete {
				set(c.Name, ctx.Now.UTC())
			}
		case "created-by":
			if kind == opx.MInsert {
				setIfClaimPresent(data, c.Name, ctx, claimKey, a.WarnOnOverwrite, table)
			}
		case "updated-by":
			if kind == opx.MInsert || kind == opx.MUpdate {
				setIfClaimPresent(data, c.Name, ctx, claimKey, a.WarnOnOverwrite, table)
			}
		case "deleted-by":
			if kind == opx.MDelete {
				setIfClaimPresent(data, c.Name, ctx, claimKey, a.WarnOnOverwrite, table)
			}
		}
	}
}

func setIfClaimPresent(data map[string]any, column string, ctx Context, claimKey string, warnOnOverwrite func(table, column string), table string) {
	v, ok := ctx.User.Get(claimKey)
	if !ok || v == nil {
		// Missing claim: leave the column untouched, never error (§4.5).
		return
	}
	if _, had := data[column]; had && warnOnOverwrite != nil {
		warnOnOverwrite(table, column)
	}
	data[column] = v
}
