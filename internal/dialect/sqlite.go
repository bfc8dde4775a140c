package dialect

import (
	"fmt"
	"strings"
)

func init() {
	Register(&Dialect{
		Name:        "sqlite",
		QuoteIdent:  sqliteQuoteIdent,
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
				// SQLite requires LIMIT to use OFFSET; -1 means unbounded.
				fmt.Fprintf(&b, " LIMIT -1 OFFSET %d", *offset)
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

		ParamPlaceholder: func(index int) string { return "?" },

		IntrospectSQL: func() string { return sqliteIntrospectSQL },
		TypeMapper:    sqliteTypeMapper{},
	})
}

func sqliteQuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

type sqliteTypeMapper struct{}

func (sqliteTypeMapper) Map(native string) (TypeMapping, error) {
	n := strings.ToUpper(native)
	switch {
	case strings.Contains(n, "INT"):
		return TypeMapping{CatBigInt, "BigIntFilter", "BigInt"}, nil
	case strings.Contains(n, "REAL") || strings.Contains(n, "FLOA") || strings.Contains(n, "DOUB"):
		return TypeMapping{CatFloat, "FloatFilter", "Float"}, nil
	case strings.Contains(n, "DECIMAL") || strings.Contains(n, "NUMERIC"):
		return TypeMapping{CatDecimal, "DecimalFilter", "Decimal"}, nil
	case strings.Contains(n, "BOOL"):
		return TypeMapping{CatBoolean, "BooleanFilter", "Boolean"}, nil
	case strings.Contains(n, "DATETIME") || strings.Contains(n, "TIMESTAMP"):
		return TypeMapping{CatDateTime, "DateTimeFilter", "DateTime"}, nil
	case strings.Contains(n, "CHAR") || strings.Contains(n, "CLOB") || strings.Contains(n, "TEXT"):
		return TypeMapping{CatString, "StringFilter", "String"}, nil
	case strings.Contains(n, "BLOB") || n == "":
		return TypeMapping{CatBinary, "BinaryFilter", "Binary"}, nil
	default:
		return TypeMapping{}, ErrUnsupportedType(native)
	}
}

const sqliteIntrospectSQL = `
SELECT m.name AS table_name, p.name AS column_name, p.type AS data_type,
       (p."notnull" = 0) AS is_nullable, p.pk AS is_pk
FROM sqlite_master m
JOIN pragma_table_info(m.name) p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%';

SELECT m.name AS table_name, fk."from" AS column_name, fk."table" AS ref_table, fk."to" AS ref_column
FROM sqlite_master m
JOIN pragma_foreign_key_list(m.name) fk
WHERE m.type = 'table';
`
