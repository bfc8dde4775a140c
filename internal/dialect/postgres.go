package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

func init() {
	Register(&Dialect{
		Name:        "postgres",
		QuoteIdent:  pgQuoteIdent,
		QuoteString: sqlQuoteString,

		RenderPagination: func(offset, limit *int, hasOrderBy bool) string {
			var b strings.Builder
			if limit != nil {
				fmt.Fprintf(&b, " LIMIT %d", *limit)
			}
			if offset != nil && *offset > 0 {
				fmt.Fprintf(&b, " OFFSET %d", *offset)
			}
			// Postgres never requires ORDER BY to paginate; no sentinel needed.
			return b.String()
		},

		RenderLikeContains:   func(col, param string) string { return col + " LIKE " + param },
		RenderLikeStartsWith: func(col, param string) string { return col + " LIKE " + param },
		RenderLikeEndsWith:   func(col, param string) string { return col + " LIKE " + param },

		RenderBooleanLiteral:  func(b bool) string { return strconv.FormatBool(b) },
		RenderDateTimeLiteral: func(rfc3339 string) string { return "TIMESTAMPTZ '" + rfc3339 + "'" },

		ParamPlaceholder: func(index int) string { return fmt.Sprintf("$%d", index+1) },

		IntrospectSQL:  func() string { return postgresIntrospectSQL },
		TypeMapper:     postgresTypeMapper{},
	})
}

func pgQuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func sqlQuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

type postgresTypeMapper struct{}

func (postgresTypeMapper) Map(native string) (TypeMapping, error) {
	n := strings.ToLower(native)
	switch {
	case n == "smallint" || n == "int2":
		return TypeMapping{CatShort, "ShortFilter", "Short"}, nil
	case n == "integer" || n == "int" || n == "int4" || n == "serial":
		return TypeMapping{CatInt, "IntFilter", "Int"}, nil
	case n == "bigint" || n == "int8" || n == "bigserial":
		return TypeMapping{CatBigInt, "BigIntFilter", "BigInt"}, nil
	case n == "real" || n == "float4" || n == "double precision" || n == "float8":
		return TypeMapping{CatFloat, "FloatFilter", "Float"}, nil
	case strings.HasPrefix(n, "numeric") || strings.HasPrefix(n, "decimal"):
		return TypeMapping{CatDecimal, "DecimalFilter", "Decimal"}, nil
	case n == "boolean" || n == "bool":
		return TypeMapping{CatBoolean, "BooleanFilter", "Boolean"}, nil
	case n == "timestamptz" || n == "timestamp with time zone":
		return TypeMapping{CatDateTimeOffset, "DateTimeOffsetFilter", "DateTimeOffset"}, nil
	case n == "timestamp" || n == "timestamp without time zone":
		return TypeMapping{CatDateTime, "DateTimeFilter", "DateTime"}, nil
	case n == "time" || n == "time without time zone" || n == "time with time zone":
		return TypeMapping{CatTime, "TimeFilter", "Time"}, nil
	case n == "text" || strings.HasPrefix(n, "varchar") || strings.HasPrefix(n, "char") || n == "uuid" || n == "citext":
		return TypeMapping{CatString, "StringFilter", "String"}, nil
	case n == "json" || n == "jsonb":
		return TypeMapping{CatJSON, "JSONFilter", "JSON"}, nil
	case n == "bytea":
		return TypeMapping{CatBinary, "BinaryFilter", "Binary"}, nil
	default:
		return TypeMapping{}, ErrUnsupportedType(native)
	}
}

const postgresIntrospectSQL = `
SELECT
  c.table_schema, c.table_name, c.column_name, c.data_type,
  (c.is_nullable = 'YES') AS is_nullable,
  (c.column_default LIKE 'nextval(%') AS is_identity
FROM information_schema.columns c
WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.table_schema, c.table_name, c.ordinal_position;

SELECT
  tc.table_schema, tc.table_name, kcu.column_name,
  ccu.table_schema AS ref_schema, ccu.table_name AS ref_table, ccu.column_name AS ref_column,
  tc.constraint_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY';

SELECT
  tc.table_schema, tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY';
`
