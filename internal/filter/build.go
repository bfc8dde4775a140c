package filter

import (
	"github.com/vertagql/gqlsql/internal/gqlerr"
	"github.com/vertagql/gqlsql/internal/sdata"
)

// Schema is the minimal lookup surface Build needs from a sdata.DBModel:
// "is this key a column, or a link, on the given table".
type Schema interface {
	ColumnExists(table, name string) bool
	Link(table, name string) (sdata.Link, bool)
}

// Build interprets a decoded GraphQL filter input value (already unmarshaled
// to Go maps/slices/scalars) against table in schema, key-first per §4.3:
//
//	and/or/not (sequence value)   -> Logical
//	column name key               -> Column, recursing into the relation map
//	link name key                  -> CrossTable, recursing against the link's target table
//	                                  (referenced table for a single link, referencing table for a multi link)
//	_op inside a column mapping    -> Relation leaf
func Build(schema Schema, table string, value any) (*Filter, error) {
	return buildAt(schema, table, "", value)
}

func buildAt(schema Schema, table, path string, value any) (*Filter, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path, "filter must be an object")
	}
	if len(m) == 0 {
		return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path, "filter object must not be empty")
	}

	var result *Filter
	for key, v := range m {
		var node *Filter
		var err error

		switch key {
		case "and", "or", "not":
			node, err = buildLogical(schema, table, path, LogicalOp(key), v)
		default:
			if link, ok := schema.Link(table, key); ok {
				target := link.ChildTable
				if link.Kind == sdata.LinkSingle {
					target = link.ParentTable
				}
				sub, berr := buildAt(schema, target, path+"."+key, v)
				if berr != nil {
					return nil, berr
				}
				node, err = CrossTable(key, sub), nil
			} else if schema.ColumnExists(table, key) {
				rel, berr := buildRelation(path+"."+key, v)
				if berr != nil {
					return nil, berr
				}
				node, err = Column(table, key, rel), nil
			} else {
				return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path+"."+key, "unknown column or link "+key)
			}
		}
		if err != nil {
			return nil, err
		}
		result = And(result, node)
	}
	return result, nil
}

func buildLogical(schema Schema, table, path string, op LogicalOp, v any) (*Filter, error) {
	list, ok := v.([]any)
	if !ok {
		list = []any{v}
	}
	branches := make([]*Filter, 0, len(list))
	for i, item := range list {
		b, err := buildAt(schema, table, path, item)
		if err != nil {
			return nil, err
		}
		_ = i
		branches = append(branches, b)
	}
	return Logical(op, branches...), nil
}

// buildRelation interprets the value bound to a column key: a map of
// {_op: value}, or (as sugar) a bare scalar meaning {_eq: value}.
func buildRelation(path string, v any) (*Filter, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Relation(OpEq, v), nil
	}
	if len(m) == 0 {
		return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path, "relation object must not be empty")
	}

	var result *Filter
	for opKey, val := range m {
		op := RelOp(opKey)
		if !validOps[op] {
			return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path, "unknown operator "+opKey)
		}

		switch op {
		case OpIn, OpNin:
			arr, ok := val.([]any)
			if !ok {
				return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path, opKey+" requires an array value")
			}
			result = And(result, Relation(op, arr))

		case OpBetween:
			arr, ok := val.([]any)
			if !ok || len(arr) != 2 {
				return nil, gqlerr.Invalid(gqlerr.CodeInvalidFilter, path, "_between requires exactly 2 values")
			}
			result = And(result, Relation(op, arr))

		case OpEq:
			if val == nil {
				result = And(result, Relation(OpIsNull, true))
			} else {
				result = And(result, Relation(OpEq, val))
			}

		case OpNeq:
			if val == nil {
				result = And(result, Relation(OpIsNull, false))
			} else {
				result = And(result, Relation(OpNeq, val))
			}

		default:
			result = And(result, Relation(op, val))
		}
	}
	return result, nil
}
