// Package dialect describes the pluggable, per-database SQL syntax and type
// system the renderer (internal/render) and executor depend on. Every
// operation here is pure and thread-safe: no I/O, no mutable state, safe to
// share as a process-wide singleton.
package dialect

import "github.com/vertagql/gqlsql/internal/gqlerr"

// Category is the abstract, GraphQL-facing type a database column maps to.
type Category string

const (
	CatInt            Category = "Int"
	CatBigInt         Category = "BigInt"
	CatShort          Category = "Short"
	CatFloat          Category = "Float"
	CatDecimal        Category = "Decimal"
	CatBoolean        Category = "Boolean"
	CatDateTime       Category = "DateTime"
	CatDateTimeOffset Category = "DateTimeOffset"
	CatTime           Category = "Time"
	CatString         Category = "String"
	CatJSON           Category = "JSON"
	CatBinary         Category = "Binary"
	CatUnknown        Category = "Unknown"
)

// TypeMapping is what a TypeMapper returns for one native database type.
type TypeMapping struct {
	Category         Category
	FilterInputType  string // e.g. "IntFilter"
	InsertInputType  string // e.g. "Int"
}

// TypeMapper maps a dialect-native column type string to its GraphQL-level
// category and the input type names the schema projector exposes.
type TypeMapper interface {
	Map(nativeType string) (TypeMapping, error)
}

// ErrUnsupportedType is returned by a TypeMapper when it has no mapping for
// the native type (see spec §4.1 Failure).
func ErrUnsupportedType(nativeType string) error {
	return gqlerr.New(gqlerr.KindInvalidInput, gqlerr.CodeDialectUnsupportedType, "",
		"no type mapping for native type "+nativeType)
}

// Dialect is the capability contract every supported database implements.
// All methods must be pure: no network or disk I/O, safe for concurrent use.
type Dialect struct {
	// Name is the dialect's canonical short name ("postgres", "mysql", ...).
	Name string

	// QuoteIdent escapes s as a dialect identifier (backticks, brackets,
	// double quotes).
	QuoteIdent func(s string) string

	// QuoteString escapes s as a single-quoted literal. Used only in
	// non-parameterizable positions (e.g. DDL introspection); values never
	// travel this way once parameterization is possible.
	QuoteString func(s string) string

	// RenderPagination renders the OFFSET/LIMIT/FETCH clause, or "" when
	// neither offset nor limit is set. hasOrderBy tells the dialect whether
	// a preceding ORDER BY was already emitted. No dialect emits an ORDER BY
	// sentinel here: the renderer writes OrderBySentinel before calling this
	// when pagination has no sort and NeedsOrderBySentinel is true.
	RenderPagination func(offset, limit *int, hasOrderBy bool) string

	// RenderLikeContains/StartsWith/EndsWith render `<col> LIKE <param>` for
	// the three pattern kinds and return only that SQL fragment. The
	// renderer pre-wraps the bound value with '%' in Go before binding it.
	RenderLikeContains   func(col, param string) string
	RenderLikeStartsWith func(col, param string) string
	RenderLikeEndsWith   func(col, param string) string

	RenderBooleanLiteral func(b bool) string
	RenderDateTimeLiteral func(rfc3339 string) string

	// ParamPlaceholder renders the bind placeholder for the i'th (0-based)
	// parameter in first-use order ("$1", "?", "@p1", ...).
	ParamPlaceholder func(index int) string

	// IntrospectSQL is a statement that dumps tables/columns/foreign keys.
	// sdata.Introspect does not call it; it runs its own per-dialect queries.
	IntrospectSQL func() string

	TypeMapper TypeMapper
}

// LikeWrapsParam marks a dialect whose LIKE pattern is built by SQL
// concatenation (so the bound parameter is the raw substring, not
// pre-wrapped with '%'). No registered dialect sets it and the renderer
// does not read it: every dialect here, SQL Server included, binds a value
// the renderer has already wrapped with '%' in Go.
type LikeWrapsParam bool

// Registry is the set of dialects this build knows about, keyed by name.
var registry = map[string]*Dialect{}

// Register adds a dialect to the process-wide registry. Called from each
// dialect's init().
func Register(d *Dialect) { registry[d.Name] = d }

// Lookup returns the named dialect, or nil if unknown.
func Lookup(name string) *Dialect { return registry[name] }
