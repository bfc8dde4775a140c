// Package plan builds and manipulates the ObjectQuery tree (§3, §4.4): one
// node per selected table, produced by lowering a parsed operation tree,
// then mutated in place by the policy layer (C5) and the link planner (C7)
// before the renderer (C6) consumes it.
package plan

import (
	"fmt"
	"strings"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// JoinSpec is the resolved join metadata for one link, computed by
// ConnectLinks.
type JoinSpec struct {
	ParentKeys []string
	ChildKeys  []string
	JoinAlias  string
	Link       sdata.Link
}

// ObjectQuery is one node of the translated query plan.
type ObjectQuery struct {
	Table         string
	GraphQLAlias  string
	ScalarColumns []string
	Filter        *filter.Filter
	Sort          []opx.SortKey
	Offset        *int
	Limit         *int
	IncludeTotal  bool
	Links         []*ObjectQuery
	Joins         []JoinSpec // parallel to Links, filled by ConnectLinks
	Path          string

	Mutation     opx.MutationKind
	MutationData map[string]any

	IsLink bool // true for every non-root node
}

// Schema is the lookup surface Lower/ConnectLinks need.
type Schema interface {
	filter.Schema
	Table(name string) (*sdata.Table, bool)
}

// Lower builds one ObjectQuery tree per root selection. The root
// selection's Name must already be a table's graphql_name; nested
// selections' Name is resolved as a link field off their parent's table.
func Lower(schema Schema, sel *opx.Selection) (*ObjectQuery, error) {
	return lower(schema, sel.Name, sel, sel.Name, false)
}

// lower builds the node for sel, where table is the already-resolved
// table this selection reads from (root: sel.Name itself; link: the
// target table resolved from the parent's link map).
func lower(schema Schema, table string, sel *opx.Selection, path string, isLink bool) (*ObjectQuery, error) {
	oq := &ObjectQuery{
		Table:         table,
		GraphQLAlias:  aliasOf(sel),
		ScalarColumns: append([]string(nil), sel.ScalarFields...),
		Sort:          sel.Sort,
		Offset:        sel.Offset,
		Limit:         sel.Limit,
		IncludeTotal:  sel.IncludeTotal,
		Path:          path,
		Mutation:      sel.Mutation,
		MutationData:  sel.MutationData,
		IsLink:        isLink,
	}

	if sel.Filter != nil {
		f, err := filter.Build(schema, table, sel.Filter)
		if err != nil {
			return nil, err
		}
		oq.Filter = f
	}

	parentTable, ok := schema.Table(table)
	if !ok {
		return nil, fmt.Errorf("unresolved-link: unknown table %s", table)
	}

	for _, child := range sel.Children {
		link, ok := resolveLink(parentTable, child.Name)
		if !ok {
			return nil, &unresolvedLinkError{table: table, name: child.Name, path: path + "=>" + child.Name}
		}
		target := link.ParentTable
		if link.Kind == sdata.LinkMulti {
			target = link.ChildTable
		}
		childPath := path + "=>" + child.Name
		childOQ, err := lower(schema, target, child, childPath, true)
		if err != nil {
			return nil, err
		}
		oq.Links = append(oq.Links, childOQ)
	}

	return oq, nil
}

func aliasOf(sel *opx.Selection) string {
	if sel.Alias != "" {
		return sel.Alias
	}
	return sel.Name
}

// ConnectLinks resolves, for every entry in oq.Links, the matching schema
// Link by GraphQL name and attaches a JoinSpec, then recurses into the
// child. It is idempotent: re-running it on an already-connected tree
// recomputes the same Joins slice (§4.4 invariant, §8 "Idempotence of
// connect_links").
func ConnectLinks(schema Schema, oq *ObjectQuery) error {
	table, ok := schema.Table(oq.Table)
	if !ok {
		return fmt.Errorf("connect_links: unknown table %s", oq.Table)
	}

	joins := make([]JoinSpec, len(oq.Links))
	for i, child := range oq.Links {
		name := lastSegment(child.Path)
		link, ok := resolveLink(table, name)
		if !ok {
			return &unresolvedLinkError{table: oq.Table, name: name, path: child.Path}
		}
		joins[i] = JoinSpec{
			ParentKeys: link.ParentColumns,
			ChildKeys:  link.ChildColumns,
			JoinAlias:  child.Path,
			Link:       link,
		}
		if err := ConnectLinks(schema, child); err != nil {
			return err
		}
	}
	oq.Joins = joins
	return nil
}

func resolveLink(t *sdata.Table, name string) (sdata.Link, bool) {
	key := strings.ToLower(name)
	for k, l := range t.SingleLinks {
		if k == key {
			return l, true
		}
	}
	for k, l := range t.MultiLinks {
		if k == key {
			return l, true
		}
	}
	return sdata.Link{}, false
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "=>")
	if idx < 0 {
		return path
	}
	return path[idx+2:]
}

type unresolvedLinkError struct {
	table, name, path string
}

func (e *unresolvedLinkError) Error() string {
	return fmt.Sprintf("unresolved-link: %s has no link or scalar named %s", e.table, e.name)
}

func (e *unresolvedLinkError) Path() string { return e.path }
