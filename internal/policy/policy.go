// Package policy implements the three policy registries (§4.5): filter
// transformers, mutation transformers, and audit modules, composed in
// priority order (lower = applied first / innermost) and wired as plain
// ordered slices at startup rather than a service locator.
package policy

import (
	"sort"
	"time"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/gqlerr"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/plan"
)

// Context is what transformers/modules receive: request-scoped user claims
// plus whether the current node is the root of the plan.
type Context struct {
	User      opx.UserContext
	IsRoot    bool
	QualTable string // "schema.table"; ApplyFilters does not fill it and no built-in policy reads it
	Now       time.Time
}

// FilterTransformer ANDs an additional predicate onto a plan node.
type FilterTransformer interface {
	Priority() int
	AppliesTo(table string, ctx Context) bool
	AdditionalFilter(table string, ctx Context) (*filter.Filter, error)
}

// MutationResult is what a MutationTransformer returns: possibly a
// different mutation kind/data, plus any extra WHERE predicate the
// transform requires (e.g. "never touch soft-deleted rows").
type MutationResult struct {
	Kind            opx.MutationKind
	Data            map[string]any
	AdditionalFilter *filter.Filter
}

// MutationTransformer may rewrite a mutation's kind and data.
type MutationTransformer interface {
	Priority() int
	AppliesTo(table string, kind opx.MutationKind, ctx Context) bool
	Transform(table string, kind opx.MutationKind, data map[string]any, ctx Context) (MutationResult, error)
}

// AuditModule overwrites system-managed columns on write.
type AuditModule interface {
	Priority() int
	Apply(table string, kind opx.MutationKind, data map[string]any, ctx Context)
}

// Registry holds the three composed, priority-sorted policy slices.
type Registry struct {
	filters   []FilterTransformer
	mutations []MutationTransformer
	audits    []AuditModule
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) AddFilterTransformer(t FilterTransformer) {
	r.filters = append(r.filters, t)
	sort.SliceStable(r.filters, func(i, j int) bool { return r.filters[i].Priority() < r.filters[j].Priority() })
}

func (r *Registry) AddMutationTransformer(t MutationTransformer) {
	r.mutations = append(r.mutations, t)
	sort.SliceStable(r.mutations, func(i, j int) bool { return r.mutations[i].Priority() < r.mutations[j].Priority() })
}

func (r *Registry) AddAuditModule(m AuditModule) {
	r.audits = append(r.audits, m)
	sort.SliceStable(r.audits, func(i, j int) bool { return r.audits[i].Priority() < r.audits[j].Priority() })
}

// ApplyFilters recursively ANDs every applicable transformer's filter into
// oq and every descendant link, per §4.5.
func ApplyFilters(r *Registry, oq *plan.ObjectQuery, ctx Context) error {
	nodeCtx := ctx
	nodeCtx.IsRoot = !oq.IsLink

	for _, t := range r.filters {
		if !t.AppliesTo(oq.Table, nodeCtx) {
			continue
		}
		extra, err := t.AdditionalFilter(oq.Table, nodeCtx)
		if err != nil {
			return err
		}
		oq.Filter = filter.And(oq.Filter, extra)
	}

	for _, child := range oq.Links {
		if err := ApplyFilters(r, child, ctx); err != nil {
			return err
		}
	}
	return nil
}

// ApplyMutation runs the mutation-transformer chain for one mutation node,
// composing per §4.5: "a final combined mutation result carries the
// last-written type/data plus the union of filters".
func ApplyMutation(r *Registry, oq *plan.ObjectQuery, ctx Context) error {
	if oq.Mutation == opx.MNone {
		return nil
	}
	kind := oq.Mutation
	data := oq.MutationData
	var combinedFilter *filter.Filter

	for _, t := range r.mutations {
		if !t.AppliesTo(oq.Table, kind, ctx) {
			continue
		}
		res, err := t.Transform(oq.Table, kind, data, ctx)
		if err != nil {
			return err
		}
		kind = res.Kind
		data = res.Data
		combinedFilter = filter.And(combinedFilter, res.AdditionalFilter)
	}

	oq.Mutation = kind
	oq.MutationData = data
	oq.Filter = filter.And(oq.Filter, combinedFilter)
	return nil
}

// ApplyAudit overwrites system-managed columns of data in place per §4.5,
// running every applicable audit module in priority order (later modules
// see earlier modules' overwrites).
func ApplyAudit(r *Registry, table string, kind opx.MutationKind, data map[string]any, ctx Context) {
	for _, m := range r.audits {
		m.Apply(table, kind, data, ctx)
	}
}

// ErrTenantRequired is returned by the tenant-isolation transformer when the
// context lacks the required tenant claim.
func ErrTenantRequired(table, claimKey string) error {
	return gqlerr.Policy(gqlerr.CodeTenantRequired, "", "table "+table+" requires tenant claim "+claimKey)
}
