package policy

import (
	"strings"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// AutoFilter implements priority-1 claim-driven filtering: metadata
// `auto-filter: col:claim,col:claim` adds an equality (scalar claim) or IN
// (sequence claim) predicate per column/claim pair. An admin role claim can
// bypass the whole transformer.
type AutoFilter struct {
	Model         *sdata.DBModel
	AdminRoleClaimKey string // e.g. "role"; default "role"
	AdminRoleValue    string // e.g. "admin"
}

func (AutoFilter) Priority() int { return 1 }

func (f AutoFilter) roleClaimKey() string {
	if f.AdminRoleClaimKey != "" {
		return f.AdminRoleClaimKey
	}
	return "role"
}

func (f AutoFilter) isAdminBypass(ctx Context) bool {
	if f.AdminRoleValue == "" {
		return false
	}
	v, ok := ctx.User.Get(f.roleClaimKey())
	if !ok {
		return false
	}
	s, _ := v.(string)
	return s == f.AdminRoleValue
}

func (f AutoFilter) rules(table string) []columnClaim {
	t, ok := f.Model.Table(table)
	if !ok {
		return nil
	}
	raw, ok := t.Metadata["auto-filter"]
	if !ok {
		return nil
	}
	var rules []columnClaim
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		rules = append(rules, columnClaim{column: strings.TrimSpace(parts[0]), claim: strings.TrimSpace(parts[1])})
	}
	return rules
}

type columnClaim struct{ column, claim string }

func (f AutoFilter) AppliesTo(table string, ctx Context) bool {
	if f.isAdminBypass(ctx) {
		return false
	}
	return len(f.rules(table)) > 0
}

func (f AutoFilter) AdditionalFilter(table string, ctx Context) (*filter.Filter, error) {
	var combined *filter.Filter
	for _, rule := range f.rules(table) {
		val, ok := ctx.User.Get(rule.claim)
		if !ok || val == nil {
			continue
		}
		var rel *filter.Filter
		if seq, isSeq := val.([]any); isSeq {
			rel = filter.Relation(filter.OpIn, seq)
		} else {
			rel = filter.Relation(filter.OpEq, val)
		}
		combined = filter.And(combined, filter.Column(table, rule.column, rel))
	}
	return combined, nil
}
