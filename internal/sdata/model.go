// Package sdata holds the immutable schema model (§3, §4.2 of the design):
// tables, columns, keys and links built once from an introspection source
// and looked up case-insensitively thereafter.
package sdata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobuffalo/flect"
)

// Column describes one table column.
type Column struct {
	Name         string
	GraphQLName  string
	DataType     string // dialect-native type string
	IsNullable   bool
	IsIdentity   bool
	IsPrimaryKey bool
	Metadata     map[string]string
}

// LinkKind distinguishes the two ends of one foreign key relationship.
type LinkKind int

const (
	LinkSingle LinkKind = iota // N-to-1, FK owner's side
	LinkMulti                  // 1-to-N, referenced side
)

// Link is a foreign-key-driven relationship exposed as a GraphQL field.
type Link struct {
	Kind           LinkKind
	Name           string
	ParentTable    string
	ParentColumns  []string
	ChildTable     string
	ChildColumns   []string
}

// Table describes one introspected table and its columns/keys/links.
type Table struct {
	DBName      string
	SchemaName  string
	GraphQLName string
	Columns     []Column
	PrimaryKeys []string
	SingleLinks map[string]Link
	MultiLinks  map[string]Link
	Metadata    map[string]string

	colIndex map[string]int // normalized column name -> index into Columns
}

// Column looks up a column by name, case-insensitively.
func (t *Table) Column(name string) (Column, bool) {
	if i, ok := t.colIndex[normalize(name)]; ok {
		return t.Columns[i], true
	}
	return Column{}, false
}

// QualifiedName renders "schema.table" using the given identifier quoter.
func (t *Table) QualifiedName(quote func(string) string) string {
	if t.SchemaName == "" {
		return quote(t.DBName)
	}
	return quote(t.SchemaName) + "." + quote(t.DBName)
}

// DBModel is the full, immutable schema. Lifecycle: built once at startup
// from an introspection source, never mutated afterward. Table lookups are
// case-insensitive.
type DBModel struct {
	tables   []Table
	byName   map[string]int // normalized db/graphql name -> index
	Metadata map[string]string
}

func normalize(s string) string { return strings.ToLower(s) }

// Table looks up a table by its DB or GraphQL name, case-insensitively.
func (m *DBModel) Table(name string) (*Table, bool) {
	if i, ok := m.byName[normalize(name)]; ok {
		return &m.tables[i], true
	}
	return nil, false
}

// Tables returns all tables in a stable order, sorted by normalized
// schema-qualified name.
func (m *DBModel) Tables() []Table { return m.tables }

// ColumnExists reports whether name is a column of table. Satisfies
// filter.Schema.
func (m *DBModel) ColumnExists(table, name string) bool {
	t, ok := m.Table(table)
	if !ok {
		return false
	}
	_, ok = t.Column(name)
	return ok
}

// Link resolves name as a single_link or multi_link of table by GraphQL
// name. Satisfies filter.Schema (cross-table EXISTS filters, §4.3).
func (m *DBModel) Link(table, name string) (Link, bool) {
	t, ok := m.Table(table)
	if !ok {
		return Link{}, false
	}
	key := normalize(name)
	if l, ok := t.SingleLinks[key]; ok {
		return l, true
	}
	if l, ok := t.MultiLinks[key]; ok {
		return l, true
	}
	return Link{}, false
}

// Builder accumulates introspected rows and foreign keys, then produces an
// immutable DBModel. Kept separate from DBModel itself so construction
// errors (dropped links) never leak into the immutable result's API.
type Builder struct {
	tables   map[string]*Table // keyed by normalized db name
	order    []string
	fks      []foreignKey
	Metadata map[string]string
	// Warnf receives non-fatal construction warnings (e.g. dropped links
	// whose referenced table is absent). May be nil.
	Warnf func(format string, args ...any)
}

type foreignKey struct {
	childSchema, childTable string
	childColumns            []string
	parentSchema, parentTable string
	parentColumns           []string
	name                     string
}

func NewBuilder() *Builder {
	return &Builder{tables: map[string]*Table{}, Metadata: map[string]string{}}
}

func (b *Builder) warnf(format string, args ...any) {
	if b.Warnf != nil {
		b.Warnf(format, args...)
	}
}

// AddTable registers a table and its columns. graphqlName defaults to the
// db name when empty.
func (b *Builder) AddTable(schema, name string, cols []Column) {
	key := normalize(schemaKey(schema, name))
	gname := name
	t := &Table{
		DBName:      name,
		SchemaName:  schema,
		GraphQLName: gname,
		Columns:     cols,
		SingleLinks: map[string]Link{},
		MultiLinks:  map[string]Link{},
		Metadata:    map[string]string{},
		colIndex:    map[string]int{},
	}
	for i, c := range cols {
		t.colIndex[normalize(c.Name)] = i
		if c.IsPrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, c.Name)
		}
	}
	b.tables[key] = t
	b.order = append(b.order, key)
}

func schemaKey(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

// AddForeignKey records one FK edge; links are derived from all recorded
// edges at Build time (a single FK yields one single_link and one
// multi_link, per §4.2).
func (b *Builder) AddForeignKey(childSchema, childTable string, childCols []string,
	parentSchema, parentTable string, parentCols []string, name string) {
	b.fks = append(b.fks, foreignKey{
		childSchema: childSchema, childTable: childTable, childColumns: childCols,
		parentSchema: parentSchema, parentTable: parentTable, parentColumns: parentCols,
		name: name,
	})
}

// Build finalizes the model: resolves links from recorded FKs, dropping any
// whose referenced table is absent (warning, not failure, per §4.2), then
// freezes the table set in deterministic order, sorted by normalized
// schema-qualified name.
func (b *Builder) Build() *DBModel {
	for _, fk := range b.fks {
		child, ok := b.tables[normalize(schemaKey(fk.childSchema, fk.childTable))]
		if !ok {
			continue
		}
		parent, ok := b.tables[normalize(schemaKey(fk.parentSchema, fk.parentTable))]
		if !ok {
			b.warnf("dropping link %s: referenced table %s.%s not found", fk.name, fk.parentSchema, fk.parentTable)
			continue
		}

		singleName := singleLinkName(child, parent, fk.name)
		child.SingleLinks[normalize(singleName)] = Link{
			Kind: LinkSingle, Name: singleName,
			ParentTable: parent.DBName, ParentColumns: fk.parentColumns,
			ChildTable: child.DBName, ChildColumns: fk.childColumns,
		}

		multiName := multiLinkName(parent, child, fk.name)
		parent.MultiLinks[normalize(multiName)] = Link{
			Kind: LinkMulti, Name: multiName,
			ParentTable: parent.DBName, ParentColumns: fk.parentColumns,
			ChildTable: child.DBName, ChildColumns: fk.childColumns,
		}
	}

	names := append([]string(nil), b.order...)
	sort.Strings(names)

	m := &DBModel{byName: map[string]int{}, Metadata: b.Metadata}
	for _, k := range names {
		t := b.tables[k]
		idx := len(m.tables)
		m.tables = append(m.tables, *t)
		m.byName[normalize(t.DBName)] = idx
		m.byName[normalize(t.GraphQLName)] = idx
	}
	return m
}

// singleLinkName names the FK-owner-side field: the parent table's singular
// GraphQL name, unless `link-name-singular:<fkName>` metadata on the parent
// table overrides it. Callers that load metadata rules must apply them via
// MetadataLoader.ApplyToBuilder before calling Build, since this lookup
// happens during link resolution.
func singleLinkName(child, parent *Table, fkName string) string {
	if v, ok := parent.Metadata["link-name-singular:"+fkName]; ok {
		return v
	}
	return flect.Singularize(flect.Camelize(parent.GraphQLName))
}

func multiLinkName(parent, child *Table, fkName string) string {
	if v, ok := parent.Metadata["link-name-plural:"+fkName]; ok {
		return v
	}
	return flect.Pluralize(flect.Camelize(child.GraphQLName))
}

func (l Link) String() string {
	return fmt.Sprintf("%s(%v)->%s(%v)", l.ChildTable, l.ChildColumns, l.ParentTable, l.ParentColumns)
}
