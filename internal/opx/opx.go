// Package opx defines the narrow value types the adapter receives from its
// external collaborators: the already-parsed GraphQL operation tree (§6)
// and the nested response tree it produces. Parsing/validating GraphQL text
// itself is explicitly out of scope (spec §1).
package opx

// OperationKind distinguishes a query from a mutation.
type OperationKind int

const (
	OpQuery OperationKind = iota
	OpMutation
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one entry of an ordered sort sequence.
type SortKey struct {
	Column    string
	Direction Direction
}

// MutationKind distinguishes the three mutation kinds a Selection can carry.
type MutationKind int

const (
	MNone MutationKind = iota
	MInsert
	MUpdate
	MDelete
)

// Selection is one node of the parsed operation tree: one selected table,
// with scalar fields and nested object/list selections.
type Selection struct {
	// Name is the GraphQL field name (table's graphql_name, or link name
	// for nested selections).
	Name  string
	Alias string

	ScalarFields []string
	Children     []*Selection

	Filter       any // decoded GraphQL filter input, see internal/filter.Build
	Sort         []SortKey
	Offset       *int
	Limit        *int
	IncludeTotal bool

	Mutation     MutationKind
	MutationData map[string]any // submitted nested object tree for insert/update/delete
}

// OperationTree is the reduced external input: {kind, root_selections}.
type OperationTree struct {
	Kind           OperationKind
	RootSelections []*Selection
}

// Variables is the raw variables map accompanying an operation.
type Variables map[string]any

// UserContext carries caller-scoped claims (tenant id, role, user id, ...)
// consumed by the policy layer.
type UserContext map[string]any

func (c UserContext) Get(key string) (any, bool) { v, ok := c[key]; return v, ok }

// Response is the nested data tree produced by the assembler, keyed by
// top-level selection name/alias.
type Response struct {
	Data map[string]any
}

// Paged is the shape a paged top-level selection's value takes when
// IncludeTotal was requested.
type Paged struct {
	Data   []any `json:"data"`
	Total  int   `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}
