package dialect

import (
	"fmt"
	"strings"
)

func init() {
	Register(&Dialect{
		Name:        "sqlserver",
		QuoteIdent:  mssqlQuoteIdent,
		QuoteString: sqlQuoteString,

		RenderPagination: func(offset, limit *int, hasOrderBy bool) string {
			if offset == nil && limit == nil {
				return ""
			}
			var b strings.Builder
			// SQL Server's OFFSET ... FETCH NEXT requires an ORDER BY.
			// render.go always calls RenderPagination after emitting
			// whatever ORDER BY it had (possibly empty); when none was
			// supplied and pagination was requested, the caller must add
			// this sentinel itself by checking NeedsOrderBySentinel.
			off := 0
			if offset != nil {
				off = *offset
			}
			fmt.Fprintf(&b, " OFFSET %d ROWS", off)
			if limit != nil {
				fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", *limit)
			}
			return b.String()
		},

		RenderLikeContains:   func(col, param string) string { return col + " LIKE " + param },
		RenderLikeStartsWith: func(col, param string) string { return col + " LIKE " + param },
		RenderLikeEndsWith:   func(col, param string) string { return col + " LIKE " + param },

		RenderBooleanLiteral: func(b bool) string {
			if b {
				return "1"
			}
			return "0"
		},
		RenderDateTimeLiteral: func(rfc3339 string) string { return "'" + rfc3339 + "'" },

		ParamPlaceholder: func(index int) string { return fmt.Sprintf("@p%d", index+1) },

		IntrospectSQL: func() string { return mssqlIntrospectSQL },
		TypeMapper:    mssqlTypeMapper{},
	})
}

// NeedsOrderBySentinel reports whether the named dialect requires a
// constant-order ORDER BY to be injected before pagination when the plan
// supplied none. Only SQL Server's FETCH NEXT grammar mandates this; the
// other three dialects paginate fine without a preceding ORDER BY (see
// SPEC_FULL.md's resolution of the corresponding Open Question).
func NeedsOrderBySentinel(dialectName string) bool {
	return dialectName == "sqlserver"
}

// OrderBySentinel is the constant-order fragment emitted in that case.
const OrderBySentinel = " ORDER BY (SELECT NULL)"

func mssqlQuoteIdent(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

type mssqlTypeMapper struct{}

func (mssqlTypeMapper) Map(native string) (TypeMapping, error) {
	n := strings.ToLower(native)
	switch {
	case n == "tinyint" || n == "smallint":
		return TypeMapping{CatShort, "ShortFilter", "Short"}, nil
	case n == "int":
		return TypeMapping{CatInt, "IntFilter", "Int"}, nil
	case n == "bigint":
		return TypeMapping{CatBigInt, "BigIntFilter", "BigInt"}, nil
	case n == "real" || n == "float":
		return TypeMapping{CatFloat, "FloatFilter", "Float"}, nil
	case strings.HasPrefix(n, "decimal") || strings.HasPrefix(n, "numeric") || n == "money" || n == "smallmoney":
		return TypeMapping{CatDecimal, "DecimalFilter", "Decimal"}, nil
	case n == "bit":
		return TypeMapping{CatBoolean, "BooleanFilter", "Boolean"}, nil
	case n == "datetimeoffset":
		return TypeMapping{CatDateTimeOffset, "DateTimeOffsetFilter", "DateTimeOffset"}, nil
	case n == "datetime" || n == "datetime2" || n == "smalldatetime" || n == "date":
		return TypeMapping{CatDateTime, "DateTimeFilter", "DateTime"}, nil
	case n == "time":
		return TypeMapping{CatTime, "TimeFilter", "Time"}, nil
	case strings.HasPrefix(n, "nvarchar") || strings.HasPrefix(n, "varchar") ||
		strings.HasPrefix(n, "nchar") || strings.HasPrefix(n, "char") ||
		n == "text" || n == "ntext" || n == "uniqueidentifier":
		return TypeMapping{CatString, "StringFilter", "String"}, nil
	case n == "xml":
		return TypeMapping{CatJSON, "JSONFilter", "JSON"}, nil
	case strings.HasPrefix(n, "varbinary") || strings.HasPrefix(n, "binary") || n == "image":
		return TypeMapping{CatBinary, "BinaryFilter", "Binary"}, nil
	default:
		return TypeMapping{}, ErrUnsupportedType(native)
	}
}

const mssqlIntrospectSQL = `
SELECT s.name AS table_schema, t.name AS table_name, c.name AS column_name,
       ty.name AS data_type, c.is_nullable,
       c.is_identity
FROM sys.columns c
JOIN sys.tables t ON t.object_id = c.object_id
JOIN sys.schemas s ON s.schema_id = t.schema_id
JOIN sys.types ty ON ty.user_type_id = c.user_type_id
ORDER BY s.name, t.name, c.column_id;

SELECT
  sch.name AS table_schema, tp.name AS table_name, cp.name AS column_name,
  refsch.name AS ref_schema, tr.name AS ref_table, cr.name AS ref_column,
  fk.name AS constraint_name
FROM sys.foreign_keys fk
JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
JOIN sys.tables tp ON tp.object_id = fkc.parent_object_id
JOIN sys.schemas sch ON sch.schema_id = tp.schema_id
JOIN sys.columns cp ON cp.object_id = tp.object_id AND cp.column_id = fkc.parent_column_id
JOIN sys.tables tr ON tr.object_id = fkc.referenced_object_id
JOIN sys.schemas refsch ON refsch.schema_id = tr.schema_id
JOIN sys.columns cr ON cr.object_id = tr.object_id AND cr.column_id = fkc.referenced_column_id;
`
