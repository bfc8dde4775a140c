// Package treesync implements tree sync (C10, §4.10): given a submitted
// nested object tree and the corresponding persisted tree, it produces an
// ordered plan of Insert/Update/Delete operations a mutation executes to
// make the database match what was submitted.
package treesync

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vertagql/gqlsql/internal/filter"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// DefaultMaxDepth is used when the caller does not configure one.
const DefaultMaxDepth = 3

// OpKind distinguishes the three operation kinds tree sync emits.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
)

// Op is one emitted operation. Data holds the scalar column payload for
// Insert/Update; Filter holds the primary-key predicate for Update/Delete.
// ForeignKeyAssignments maps each FK column on this row that must be filled
// in with a not-yet-known parent id to the submitting parent's GraphQL
// field name, resolved by the caller after the parent insert runs.
type Op struct {
	Kind                   OpKind
	Table                  string
	Path                   string
	Depth                  int
	Data                   map[string]any
	Filter                 *filter.Filter
	ForeignKeyAssignments  map[string]string
}

// Schema is the lookup surface tree sync needs.
type Schema interface {
	Table(name string) (*sdata.Table, bool)
}

// Options configures a Diff call.
type Options struct {
	MaxDepth      int  // 0 means root only; DefaultOptions sets DefaultMaxDepth
	DeleteOrphans bool // default true; set explicitly since the zero value would disable it
}

// DefaultOptions returns the spec default: max depth 3, delete_orphans on.
func DefaultOptions() Options {
	return Options{MaxDepth: DefaultMaxDepth, DeleteOrphans: true}
}

// Diff compares submitted against persisted (nil when creating) for rootTable
// and returns the ordered operation plan: inserts ascending depth, then
// updates in any order, then deletes descending depth (§4.10 ordering rule).
func Diff(schema Schema, rootTable string, submitted, persisted map[string]any, opts Options) ([]Op, error) {
	var inserts, updates, deletes []Op
	if err := diffNode(schema, rootTable, rootTable, 0, submitted, persisted, opts, &inserts, &updates, &deletes); err != nil {
		return nil, err
	}

	sort.SliceStable(inserts, func(i, j int) bool { return inserts[i].Depth < inserts[j].Depth })
	sort.SliceStable(deletes, func(i, j int) bool { return deletes[i].Depth > deletes[j].Depth })

	out := make([]Op, 0, len(inserts)+len(updates)+len(deletes))
	out = append(out, inserts...)
	out = append(out, updates...)
	out = append(out, deletes...)
	return out, nil
}

func diffNode(schema Schema, table, path string, depth int, submitted, persisted map[string]any, opts Options,
	inserts, updates, deletes *[]Op) error {
	if depth > opts.MaxDepth {
		// Silent truncation beyond max depth, per spec: no operations
		// produced for this subtree.
		return nil
	}

	t, ok := schema.Table(table)
	if !ok {
		return fmt.Errorf("treesync: unknown table %s", table)
	}

	scalars, children := splitTree(t, submitted)

	isUpdate := hasAllPrimaryKeys(t, scalars)
	var fkAssign map[string]string

	if isUpdate {
		if changedFromPersisted(t, scalars, persisted) {
			*updates = append(*updates, Op{
				Kind:  OpUpdate,
				Table: table,
				Path:  path,
				Depth: depth,
				Data:  withoutKeys(scalars, t.PrimaryKeys),
				Filter: pkFilter(t, scalars),
			})
		}
	} else {
		fkAssign = map[string]string{}
		*inserts = append(*inserts, Op{
			Kind:                  OpInsert,
			Table:                 table,
			Path:                  path,
			Depth:                 depth,
			Data:                  scalars,
			ForeignKeyAssignments: fkAssign,
		})
	}

	var persistedChildren map[string]any
	if persisted != nil {
		persistedChildren = persisted
	}

	for linkName, submittedVal := range children {
		link, ok := resolveLink(t, linkName)
		if !ok {
			continue
		}
		childTable := link.ChildTable
		if link.Kind == sdata.LinkSingle {
			childTable = link.ParentTable
		}
		childPath := path + "=>" + linkName

		var persistedVal any
		if persistedChildren != nil {
			persistedVal = persistedChildren[linkName]
		}

		switch link.Kind {
		case sdata.LinkSingle:
			subMap, _ := submittedVal.(map[string]any)
			perMap, _ := persistedVal.(map[string]any)
			if subMap == nil {
				continue
			}
			if fkAssign != nil {
				for _, col := range link.ChildColumns {
					fkAssign[col] = linkName
				}
			}
			if err := diffNode(schema, childTable, childPath, depth+1, subMap, perMap, opts, inserts, updates, deletes); err != nil {
				return err
			}

		case sdata.LinkMulti:
			subList := asMapList(submittedVal)
			perList := asMapList(persistedVal)

			perByKey := keyByPrimaryKey(schema, childTable, perList)
			seen := map[string]bool{}

			for _, subChild := range subList {
				key := primaryKeyOf(schema, childTable, subChild)
				var perChild map[string]any
				if key != "" {
					perChild = perByKey[key]
					seen[key] = true
				}
				if err := diffNodeMulti(schema, childTable, childPath, depth+1, subChild, perChild, link, opts, inserts, updates, deletes); err != nil {
					return err
				}
			}

			if opts.DeleteOrphans && depth+1 <= opts.MaxDepth {
				for key, perChild := range perByKey {
					if seen[key] {
						continue
					}
					ct, _ := schema.Table(childTable)
					*deletes = append(*deletes, Op{
						Kind:   OpDelete,
						Table:  childTable,
						Path:   childPath,
						Depth:  depth + 1,
						Filter: pkFilter(ct, perChild),
					})
				}
			}
		}
	}

	return nil
}

// diffNodeMulti is diffNode specialized for one item of a multi-link
// collection: it additionally records the parent-pointing FK column so an
// insert under a not-yet-persisted parent gets a ForeignKeyAssignments
// entry.
func diffNodeMulti(schema Schema, table, path string, depth int, submitted, persisted map[string]any, link sdata.Link, opts Options,
	inserts, updates, deletes *[]Op) error {
	if depth > opts.MaxDepth {
		return nil
	}
	t, ok := schema.Table(table)
	if !ok {
		return fmt.Errorf("treesync: unknown table %s", table)
	}
	scalars, grandchildren := splitTree(t, submitted)
	isUpdate := hasAllPrimaryKeys(t, scalars)

	if isUpdate {
		if changedFromPersisted(t, scalars, persisted) {
			*updates = append(*updates, Op{
				Kind: OpUpdate, Table: table, Path: path, Depth: depth,
				Data: withoutKeys(scalars, t.PrimaryKeys), Filter: pkFilter(t, scalars),
			})
		}
	} else {
		fkAssign := map[string]string{}
		for _, col := range link.ChildColumns {
			fkAssign[col] = parentGraphQLNameOf(path)
		}
		*inserts = append(*inserts, Op{
			Kind: OpInsert, Table: table, Path: path, Depth: depth,
			Data: scalars, ForeignKeyAssignments: fkAssign,
		})
	}

	for linkName, submittedVal := range grandchildren {
		childLink, ok := resolveLink(t, linkName)
		if !ok {
			continue
		}
		childTable := childLink.ChildTable
		if childLink.Kind == sdata.LinkSingle {
			childTable = childLink.ParentTable
		}
		childPath := path + "=>" + linkName
		var perVal any
		if persisted != nil {
			perVal = persisted[linkName]
		}
		if childLink.Kind == sdata.LinkSingle {
			subMap, _ := submittedVal.(map[string]any)
			perMap, _ := perVal.(map[string]any)
			if subMap != nil {
				if err := diffNode(schema, childTable, childPath, depth+1, subMap, perMap, opts, inserts, updates, deletes); err != nil {
					return err
				}
			}
			continue
		}
		subList := asMapList(submittedVal)
		perList := asMapList(perVal)
		perByKey := keyByPrimaryKey(schema, childTable, perList)
		seen := map[string]bool{}
		for _, subChild := range subList {
			key := primaryKeyOf(schema, childTable, subChild)
			var perChild map[string]any
			if key != "" {
				perChild = perByKey[key]
				seen[key] = true
			}
			if err := diffNodeMulti(schema, childTable, childPath, depth+1, subChild, perChild, childLink, opts, inserts, updates, deletes); err != nil {
				return err
			}
		}
		if opts.DeleteOrphans && depth+1 <= opts.MaxDepth {
			for key, perChild := range perByKey {
				if seen[key] {
					continue
				}
				ct, _ := schema.Table(childTable)
				*deletes = append(*deletes, Op{Kind: OpDelete, Table: childTable, Path: childPath, Depth: depth + 1, Filter: pkFilter(ct, perChild)})
			}
		}
	}
	return nil
}

// parentGraphQLNameOf derives the GraphQL field name a foreign-key
// assignment should reference from a "a=>b=>c" path: the immediate parent
// segment, "c"'s parent being "b".
func parentGraphQLNameOf(path string) string {
	idx := strings.LastIndex(path, "=>")
	if idx < 0 {
		return path
	}
	rest := path[:idx]
	if j := strings.LastIndex(rest, "=>"); j >= 0 {
		return rest[j+2:]
	}
	return rest
}

func resolveLink(t *sdata.Table, name string) (sdata.Link, bool) {
	key := strings.ToLower(name)
	if l, ok := t.SingleLinks[key]; ok {
		return l, true
	}
	if l, ok := t.MultiLinks[key]; ok {
		return l, true
	}
	return sdata.Link{}, false
}

// splitTree separates submitted into its scalar-column payload and its
// link-name-keyed nested children.
func splitTree(t *sdata.Table, submitted map[string]any) (scalars map[string]any, children map[string]any) {
	scalars = map[string]any{}
	children = map[string]any{}
	for k, v := range submitted {
		if _, ok := t.Column(k); ok {
			scalars[k] = v
			continue
		}
		children[k] = v
	}
	return
}

func hasAllPrimaryKeys(t *sdata.Table, scalars map[string]any) bool {
	if len(t.PrimaryKeys) == 0 {
		return false
	}
	for _, pk := range t.PrimaryKeys {
		v, ok := scalars[pk]
		if !ok || v == nil {
			return false
		}
	}
	return true
}

func withoutKeys(m map[string]any, keys []string) map[string]any {
	out := make(map[string]any, len(m))
	skip := map[string]bool{}
	for _, k := range keys {
		skip[k] = true
	}
	for k, v := range m {
		if skip[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func changedFromPersisted(t *sdata.Table, scalars map[string]any, persisted map[string]any) bool {
	if persisted == nil {
		return true
	}
	pkSet := map[string]bool{}
	for _, pk := range t.PrimaryKeys {
		pkSet[pk] = true
	}
	for k, v := range scalars {
		if pkSet[k] {
			continue
		}
		if pv, ok := persisted[k]; !ok || !equalValue(pv, v) {
			return true
		}
	}
	return false
}

func equalValue(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func pkFilter(t *sdata.Table, scalars map[string]any) *filter.Filter {
	if t == nil {
		return nil
	}
	var f *filter.Filter
	for _, pk := range t.PrimaryKeys {
		v, ok := scalars[pk]
		if !ok {
			continue
		}
		f = filter.And(f, filter.Column(t.DBName, pk, filter.Relation(filter.OpEq, v)))
	}
	return f
}

func primaryKeyOf(schema Schema, table string, row map[string]any) string {
	t, ok := schema.Table(table)
	if !ok || row == nil {
		return ""
	}
	var parts []string
	for _, pk := range t.PrimaryKeys {
		v, ok := row[pk]
		if !ok || v == nil {
			return ""
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, "\x1f")
}

func keyByPrimaryKey(schema Schema, table string, rows []map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, r := range rows {
		key := primaryKeyOf(schema, table, r)
		if key == "" {
			continue
		}
		out[key] = r
	}
	return out
}

func asMapList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
