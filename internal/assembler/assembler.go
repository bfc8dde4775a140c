// Package assembler stitches the executor's labeled RowSets back into the
// nested response tree the caller asked for (§4.9): one pass per top-level
// node, walking each node's joins and matching child rows to their parent
// via the src_*/__jk_* key tuples the renderer projected.
package assembler

import (
	"encoding/base64"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/vertagql/gqlsql/internal/dialect"
	"github.com/vertagql/gqlsql/internal/executor"
	"github.com/vertagql/gqlsql/internal/opx"
	"github.com/vertagql/gqlsql/internal/plan"
	"github.com/vertagql/gqlsql/internal/render"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// Schema is the lookup surface the assembler needs to decide how a column's
// value should be formatted.
type Schema interface {
	Table(name string) (*sdata.Table, bool)
}

// Warning is a non-fatal assembly-time observation (§4.9: single-link
// cardinality overrun), surfaced to the caller alongside the response.
type Warning struct {
	Path    string
	Message string
}

// Assemble builds the response for every root in roots, reading each root's
// (and its descendants') rows out of rowsets, keyed by statement label
// (oq.Path, matching what planner.Compile produced).
func Assemble(d *dialect.Dialect, schema Schema, roots []*plan.ObjectQuery, rowsets map[string]*executor.RowSet) (*opx.Response, []Warning, error) {
	resp := &opx.Response{Data: map[string]any{}}
	var warnings []Warning

	for _, root := range roots {
		rs, ok := rowsets[root.Path]
		if !ok {
			return nil, nil, fmt.Errorf("assembler: no rowset for %s", root.Path)
		}

		allIdx := make([]int, len(rs.Rows))
		for i := range allIdx {
			allIdx[i] = i
		}
		rows, err := formatRowsAt(d, schema, root, rs, allIdx, rowsets, &warnings)
		if err != nil {
			return nil, nil, err
		}

		if root.IncludeTotal {
			countRS, ok := rowsets[root.Path+"=>count"]
			if !ok {
				return nil, nil, fmt.Errorf("assembler: include_total set but no count rowset for %s", root.Path)
			}
			total, err := readCount(countRS)
			if err != nil {
				return nil, nil, err
			}
			offset, limit := 0, 0
			if root.Offset != nil {
				offset = *root.Offset
			}
			if root.Limit != nil {
				limit = *root.Limit
			}
			resp.Data[root.GraphQLAlias] = &opx.Paged{Data: rows, Total: total, Offset: offset, Limit: limit}
		} else {
			resp.Data[root.GraphQLAlias] = rows
		}
	}

	return resp, warnings, nil
}

// formatRowsAt formats a subset of rs's rows (those in rowIdxs) for node oq,
// recursing into its own children first. Called with every row index for a
// top-level node, and with one parent key's matching indices for a link.
func formatRowsAt(d *dialect.Dialect, schema Schema, oq *plan.ObjectQuery, rs *executor.RowSet, rowIdxs []int, rowsets map[string]*executor.RowSet, warnings *[]Warning) ([]any, error) {
	table, ok := schema.Table(oq.Table)
	if !ok {
		return nil, fmt.Errorf("assembler: unknown table %s", oq.Table)
	}

	childValues := make([]map[string][]any, len(oq.Links))
	for i, child := range oq.Links {
		join := &oq.Joins[i]
		childRS, ok := rowsets[child.Path]
		if !ok {
			return nil, fmt.Errorf("assembler: no rowset for %s", child.Path)
		}
		rowsByKey, err := groupBySrcKey(childRS, len(join.ChildKeys))
		if err != nil {
			return nil, err
		}
		formatted := make(map[string][]any, len(rowsByKey))
		for key, idxs := range rowsByKey {
			vals, err := formatRowsAt(d, schema, child, childRS, idxs, rowsets, warnings)
			if err != nil {
				return nil, err
			}
			formatted[key] = vals
		}
		childValues[i] = formatted
	}

	out := make([]any, 0, len(rowIdxs))
	for _, r := range rowIdxs {
		row := map[string]any{}
		for _, col := range oq.ScalarColumns {
			v, _ := rs.Get(r, col)
			row[colOutputName(oq, col)] = formatValue(d, table, col, v)
		}
		for i, child := range oq.Links {
			join := &oq.Joins[i]
			key, err := ownKeyOf(rs, r, join.ParentKeys)
			if err != nil {
				return nil, err
			}
			vals := childValues[i][key]
			if join.Link.Kind == sdata.LinkSingle {
				if len(vals) > 1 {
					*warnings = append(*warnings, Warning{
						Path:    child.Path,
						Message: fmt.Sprintf("single link %s returned %d rows for one parent, using the first", child.Path, len(vals)),
					})
				}
				if len(vals) == 0 {
					row[child.GraphQLAlias] = nil
				} else {
					row[child.GraphQLAlias] = vals[0]
				}
			} else {
				if vals == nil {
					vals = []any{}
				}
				row[child.GraphQLAlias] = vals
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// colOutputName is the key a scalar column is exposed under in the response
// map; currently identity, kept as a named hook since link aliasing already
// needs one and formatting may want a casing convention later.
func colOutputName(oq *plan.ObjectQuery, col string) string { return col }

// ownKeyOf builds the string key for row r of rs from the values of cols,
// reading each via its projected __jk_<col> alias (render.JoinKeyColumn).
func ownKeyOf(rs *executor.RowSet, r int, cols []string) (string, error) {
	parts := make([]any, len(cols))
	for i, c := range cols {
		v, ok := rs.Get(r, render.JoinKeyColumn(c))
		if !ok {
			// Root statements reuse the same column as both a selected
			// scalar and a join key when it wasn't otherwise aliased;
			// fall back to the bare name.
			v, ok = rs.Get(r, c)
			if !ok {
				return "", fmt.Errorf("assembler: row missing join key column %s", c)
			}
		}
		parts[i] = v
	}
	return keyOf(parts), nil
}

// groupBySrcKey partitions rs's row indices by their src_0..src_n-1 tuple.
func groupBySrcKey(rs *executor.RowSet, n int) (map[string][]int, error) {
	out := map[string][]int{}
	for r := range rs.Rows {
		parts := make([]any, n)
		for i := 0; i < n; i++ {
			v, ok := rs.Get(r, render.SrcColumn(i))
			if !ok {
				return nil, fmt.Errorf("assembler: row missing %s", render.SrcColumn(i))
			}
			parts[i] = v
		}
		key := keyOf(parts)
		out[key] = append(out[key], r)
	}
	return out, nil
}

// keyOf renders a value tuple into a comparable map key, normalizing byte
// slices (common for driver-returned decimal/text types) to strings so
// equal values compare equal regardless of underlying Go type.
func keyOf(parts []any) string {
	s := ""
	for i, p := range parts {
		if i > 0 {
			s += "\x1f"
		}
		switch v := p.(type) {
		case []byte:
			s += string(v)
		case nil:
			s += "\x00"
		default:
			s += fmt.Sprintf("%v", v)
		}
	}
	return s
}

func readCount(rs *executor.RowSet) (int, error) {
	if len(rs.Rows) != 1 || len(rs.Rows[0]) != 1 {
		return 0, fmt.Errorf("assembler: malformed count rowset")
	}
	switch v := rs.Rows[0][0].(type) {
	case int64:
		return int(v), nil
	case int32:
		return int(v), nil
	case int:
		return v, nil
	case []byte:
		var n int
		_, err := fmt.Sscanf(string(v), "%d", &n)
		return n, err
	default:
		return 0, fmt.Errorf("assembler: unrecognized count value type %T", v)
	}
}

// formatValue applies the §4.9 formatting contract: DateTime columns render
// as ISO-8601, nulls stay null, everything else passes through with only
// the driver's raw representation normalized to a JSON-friendly Go value.
func formatValue(d *dialect.Dialect, table *sdata.Table, col string, v any) any {
	if v == nil {
		return nil
	}
	c, ok := table.Column(col)
	if !ok {
		return normalizeRaw(v)
	}
	if d == nil || d.TypeMapper == nil {
		return normalizeRaw(v)
	}
	mapping, err := d.TypeMapper.Map(c.DataType)
	if err != nil {
		return normalizeRaw(v)
	}
	switch mapping.Category {
	case dialect.CatDateTime, dialect.CatDateTimeOffset, dialect.CatTime:
		return formatDateTime(v)
	case dialect.CatDecimal:
		return normalizeDecimal(v)
	default:
		return normalizeRaw(v)
	}
}

func formatDateTime(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// normalizeDecimal preserves the driver's textual precision instead of
// letting it round-trip through float64.
func normalizeDecimal(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return t
	}
}

func normalizeRaw(v any) any {
	switch t := v.(type) {
	case []byte:
		if utf8.Valid(t) {
			return string(t)
		}
		return base64.StdEncoding.EncodeToString(t)
	default:
		return t
	}
}
