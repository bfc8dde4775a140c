package sdata

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is one parsed metadata rule: a dotted path selector plus its key/value
// pairs. Selector segments may be "*" (wildcard) or ":root" (targets the
// model itself rather than any table/column).
type Rule struct {
	Schema, Table, Column string // "*" wildcards; Column == "" means table-level
	IsRoot                bool
	KV                    map[string]string
}

// MetadataLoader parses the `schema.table.column { key: value; ... }` rule
// text format (and, per SPEC_FULL.md's domain-stack expansion, an
// equivalent YAML document) and attaches matching rules to tables/columns/
// the model during schema construction.
type MetadataLoader struct {
	rules []Rule
}

// NewMetadataLoader parses rule text in the line-oriented glob format:
//
//	schema.table.column { populate: created-on }
//	schema.table { soft-delete: deleted_at }
//	:root { tenant-context-key: org_id }
func NewMetadataLoader(r io.Reader) (*MetadataLoader, error) {
	ml := &MetadataLoader{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		open := strings.IndexByte(line, '{')
		close := strings.LastIndexByte(line, '}')
		if open < 0 || close < 0 || close < open {
			return nil, fmt.Errorf("metadata rule: malformed line %q", line)
		}
		selector := strings.TrimSpace(line[:open])
		body := line[open+1 : close]

		rule, err := parseSelector(selector)
		if err != nil {
			return nil, err
		}
		rule.KV = map[string]string{}
		for _, kv := range strings.Split(body, ";") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			parts := strings.SplitN(kv, ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("metadata rule: malformed kv %q", kv)
			}
			rule.KV[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
		ml.rules = append(ml.rules, rule)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ml, nil
}

// NewMetadataLoaderYAML parses rules from a YAML document shaped as:
//
//	- selector: "public.orders.deleted_at"
//	  kv: { populate: deleted-on }
func NewMetadataLoaderYAML(r io.Reader) (*MetadataLoader, error) {
	var doc []struct {
		Selector string            `yaml:"selector"`
		KV       map[string]string `yaml:"kv"`
	}
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, err
	}
	ml := &MetadataLoader{}
	for _, e := range doc {
		rule, err := parseSelector(e.Selector)
		if err != nil {
			return nil, err
		}
		rule.KV = e.KV
		ml.rules = append(ml.rules, rule)
	}
	return ml, nil
}

func parseSelector(sel string) (Rule, error) {
	if sel == ":root" {
		return Rule{IsRoot: true}, nil
	}
	parts := strings.Split(sel, ".")
	switch len(parts) {
	case 2:
		return Rule{Schema: parts[0], Table: parts[1]}, nil
	case 3:
		return Rule{Schema: parts[0], Table: parts[1], Column: parts[2]}, nil
	default:
		return Rule{}, fmt.Errorf("metadata rule: selector %q must have 2 or 3 segments or be :root", sel)
	}
}

func globMatch(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}

// Apply attaches every matching rule's key/values onto the model, its
// tables, and its columns. Table-level rules merge into Table.Metadata;
// column-level rules merge into Column.Metadata; :root rules merge into
// DBModel.Metadata.
func (ml *MetadataLoader) Apply(m *DBModel) {
	ml.applyToTables(m.tables, m.Metadata)
}

// ApplyToBuilder attaches matching rules onto the builder's still-mutable
// tables before Build runs. This must happen before Build, not after: link
// naming (single_link/multi_link override via `link-name-singular`/
// `link-name-plural`) reads Table.Metadata while resolving foreign keys,
// and Build is what resolves them — applying rules only to the frozen
// DBModel afterward would leave those two keys permanently unobserved.
func (ml *MetadataLoader) ApplyToBuilder(b *Builder) {
	tables := make([]*Table, 0, len(b.tables))
	for _, t := range b.tables {
		tables = append(tables, t)
	}
	ml.applyToTablePtrs(tables, b.Metadata)
}

func (ml *MetadataLoader) applyToTables(tables []Table, rootMeta map[string]string) {
	ptrs := make([]*Table, len(tables))
	for i := range tables {
		ptrs[i] = &tables[i]
	}
	ml.applyToTablePtrs(ptrs, rootMeta)
}

func (ml *MetadataLoader) applyToTablePtrs(tables []*Table, rootMeta map[string]string) {
	for _, t := range tables {
		for _, rule := range ml.rules {
			switch {
			case rule.IsRoot:
				for k, v := range rule.KV {
					rootMeta[k] = v
				}
			case rule.Column == "" && globMatch(rule.Schema, t.SchemaName) && globMatch(rule.Table, t.DBName):
				for k, v := range rule.KV {
					t.Metadata[k] = v
				}
			case rule.Column != "" && globMatch(rule.Schema, t.SchemaName) && globMatch(rule.Table, t.DBName):
				for j := range t.Columns {
					c := &t.Columns[j]
					if globMatch(rule.Column, c.Name) {
						if c.Metadata == nil {
							c.Metadata = map[string]string{}
						}
						for k, v := range rule.KV {
							c.Metadata[k] = v
						}
					}
				}
			}
		}
	}
}
