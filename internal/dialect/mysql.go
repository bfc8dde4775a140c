package dialect

import (
	"fmt"
	"strings"
)

func init() {
	Register(&Dialect{
		Name:        "mysql",
		QuoteIdent:  mysqlQuoteIdent,
		QuoteString: sqlQuoteString,

		RenderPagination: func(offset, limit *int, hasOrderBy bool) string {
			var b strings.Builder
			switch {
			case limit != nil:
				fmt.Fprintf(&b, " LIMIT %d", *limit)
				if offset != nil && *offset > 0 {
					fmt.Fprintf(&b, " OFFSET %d", *offset)
				}
			case offset != nil && *offset > 0:
				// MySQL requires a LIMIT to use OFFSET; use the dialect's
				// documented "no practical limit" sentinel.
				fmt.Fprintf(&b, " LIMIT 18446744073709551615 OFFSET %d", *offset)
			}
			// MySQL's LIMIT/OFFSET grammar never requires ORDER BY; no
			// sentinel needed even when hasOrderBy is false.
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

		ParamPlaceholder: func(index int) string { return "?" },

		IntrospectSQL: func() string { return mysqlIntrospectSQL },
		TypeMapper:    mysqlTypeMapper{},
	})
}

func mysqlQuoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

type mysqlTypeMapper struct{}

func (mysqlTypeMapper) Map(native string) (TypeMapping, error) {
	n := strings.ToLower(native)
	switch {
	case n == "tinyint" || n == "smallint":
		return TypeMapping{CatShort, "ShortFilter", "Short"}, nil
	case n == "int" || n == "mediumint" || n == "integer":
		return TypeMapping{CatInt, "IntFilter", "Int"}, nil
	case n == "bigint":
		return TypeMapping{CatBigInt, "BigIntFilter", "BigInt"}, nil
	case n == "float" || n == "double":
		return TypeMapping{CatFloat, "FloatFilter", "Float"}, nil
	case strings.HasPrefix(n, "decimal") || strings.HasPrefix(n, "numeric"):
		return TypeMapping{CatDecimal, "DecimalFilter", "Decimal"}, nil
	case n == "tinyint(1)" || n == "bool" || n == "boolean":
		return TypeMapping{CatBoolean, "BooleanFilter", "Boolean"}, nil
	case n == "datetime" || n == "timestamp":
		return TypeMapping{CatDateTime, "DateTimeFilter", "DateTime"}, nil
	case n == "time":
		return TypeMapping{CatTime, "TimeFilter", "Time"}, nil
	case n == "date":
		return TypeMapping{CatDateTime, "DateTimeFilter", "DateTime"}, nil
	case strings.HasPrefix(n, "varchar") || strings.HasPrefix(n, "char") || n == "text" || strings.HasPrefix(n, "text"):
		return TypeMapping{CatString, "StringFilter", "String"}, nil
	case n == "json":
		return TypeMapping{CatJSON, "JSONFilter", "JSON"}, nil
	case n == "blob" || strings.HasPrefix(n, "varbinary") || strings.HasPrefix(n, "binary"):
		return TypeMapping{CatBinary, "BinaryFilter", "Binary"}, nil
	default:
		return TypeMapping{}, ErrUnsupportedType(native)
	}
}

const mysqlIntrospectSQL = `
SELECT table_schema, table_name, column_name, column_type,
       (is_nullable = 'YES') AS is_nullable,
       (extra LIKE '%auto_increment%') AS is_identity
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_schema, table_name, ordinal_position;

SELECT table_schema, table_name, column_name,
       referenced_table_schema, referenced_table_name, referenced_column_name,
       constraint_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL;

SELECT table_schema, table_name, column_name
FROM information_schema.key_column_usage
WHERE table_schema = DATABASE() AND constraint_name = 'PRIMARY';
`

func init() {
	d := *Lookup("mysql")
	d.Name = "mariadb"
	Register(&d)
}
