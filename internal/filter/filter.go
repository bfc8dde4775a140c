// Package filter implements the typed predicate algebra (§3, §4.3): a
// closed sum type built from decoded GraphQL filter input, consumed by the
// renderer and by policy filter transformers.
package filter

import "fmt"

// RelOp is a relation operator.
type RelOp string

const (
	OpEq         RelOp = "_eq"
	OpNeq        RelOp = "_neq"
	OpLt         RelOp = "_lt"
	OpLte        RelOp = "_lte"
	OpGt         RelOp = "_gt"
	OpGte        RelOp = "_gte"
	OpIn         RelOp = "_in"
	OpNin        RelOp = "_nin"
	OpBetween    RelOp = "_between"
	OpContains   RelOp = "_contains"
	OpStartsWith RelOp = "_starts_with"
	OpEndsWith   RelOp = "_ends_with"
	OpLike       RelOp = "_like"
	OpIsNull     RelOp = "_is_null"
)

var validOps = map[RelOp]bool{
	OpEq: true, OpNeq: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpIn: true, OpNin: true, OpBetween: true, OpContains: true,
	OpStartsWith: true, OpEndsWith: true, OpLike: true, OpIsNull: true,
}

// LogicalOp is a boolean connective.
type LogicalOp string

const (
	LogAnd LogicalOp = "and"
	LogOr  LogicalOp = "or"
	LogNot LogicalOp = "not"
)

// Kind tags which variant a Filter node is.
type Kind int

const (
	KindRelation Kind = iota
	KindColumn
	KindLogical
	KindCrossTable
)

// Filter is the tagged-variant predicate AST. Only one of the kind-specific
// fields is meaningful for a given Kind, enforced by the constructors below
// rather than by exhaustive accessor methods, to keep call sites simple.
type Filter struct {
	Kind Kind

	// KindRelation
	Op    RelOp
	Value any // scalar, nil, or []any for _in/_nin/_between

	// KindColumn
	Table  string
	Column string
	Next   *Filter // always a Relation; Column nodes never nest Column children

	// KindLogical
	LogOp    LogicalOp
	Branches []*Filter

	// KindCrossTable
	LinkName string
	Sub      *Filter
}

func Relation(op RelOp, value any) *Filter { return &Filter{Kind: KindRelation, Op: op, Value: value} }

func Column(table, column string, next *Filter) *Filter {
	return &Filter{Kind: KindColumn, Table: table, Column: column, Next: next}
}

func Logical(op LogicalOp, branches ...*Filter) *Filter {
	return &Filter{Kind: KindLogical, LogOp: op, Branches: branches}
}

func CrossTable(linkName string, sub *Filter) *Filter {
	return &Filter{Kind: KindCrossTable, LinkName: linkName, Sub: sub}
}

// And ANDs two filters together, treating a nil operand as "no predicate".
func And(a, b *Filter) *Filter {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return Logical(LogAnd, a, b)
	}
}

// Invert produces the logical negation of f, pushing NOT down to the leaves
// (De Morgan) where a relation operator has an inverse, and wrapping the
// node in Logical(LogNot, ...) where it does not (cross-table filters and
// operators such as _contains or _between). Inverting twice yields a filter
// equivalent to f.
func Invert(f *Filter) *Filter {
	if f == nil {
		return nil
	}
	switch f.Kind {
	case KindRelation:
		if f.Op == OpIsNull {
			b, _ := f.Value.(bool)
			return Relation(OpIsNull, !b)
		}
		if !hasInverseOp(f.Op) {
			return Logical(LogNot, f)
		}
		return &Filter{Kind: KindRelation, Op: invertOp(f.Op), Value: f.Value}
	case KindColumn:
		// Column nodes only wrap Relations, so an operator with no inverse
		// (_contains, _between, ...) is negated around the whole column.
		if f.Next != nil && f.Next.Kind == KindRelation && f.Next.Op != OpIsNull && !hasInverseOp(f.Next.Op) {
			return Logical(LogNot, f)
		}
		return Column(f.Table, f.Column, Invert(f.Next))
	case KindCrossTable:
		// NOT EXISTS is still "exists under an inverted sub-filter" from the
		// caller's perspective only when negating set membership as a whole;
		// the renderer wraps CrossTable negation as NOT EXISTS(...) rather
		// than inverting Sub, so Invert leaves Sub untouched and flips a
		// wrapper the renderer recognizes via Logical(LogNot, f).
		return Logical(LogNot, f)
	case KindLogical:
		switch f.LogOp {
		case LogNot:
			if len(f.Branches) == 1 {
				return f.Branches[0]
			}
			return Logical(LogNot, f.Branches...)
		case LogAnd:
			inv := make([]*Filter, len(f.Branches))
			for i, b := range f.Branches {
				inv[i] = Invert(b)
			}
			return Logical(LogOr, inv...)
		case LogOr:
			inv := make([]*Filter, len(f.Branches))
			for i, b := range f.Branches {
				inv[i] = Invert(b)
			}
			return Logical(LogAnd, inv...)
		}
	}
	return Logical(LogNot, f)
}

func hasInverseOp(op RelOp) bool { return invertOp(op) != op }

func invertOp(op RelOp) RelOp {
	switch op {
	case OpEq:
		return OpNeq
	case OpNeq:
		return OpEq
	case OpLt:
		return OpGte
	case OpLte:
		return OpGt
	case OpGt:
		return OpLte
	case OpGte:
		return OpLt
	case OpIn:
		return OpNin
	case OpNin:
		return OpIn
	default:
		return op
	}
}

// Walk visits every node of f depth-first, pre-order.
func Walk(f *Filter, visit func(*Filter)) {
	if f == nil {
		return
	}
	visit(f)
	switch f.Kind {
	case KindColumn:
		Walk(f.Next, visit)
	case KindLogical:
		for _, b := range f.Branches {
			Walk(b, visit)
		}
	case KindCrossTable:
		Walk(f.Sub, visit)
	}
}

func (f *Filter) String() string {
	if f == nil {
		return "<nil>"
	}
	switch f.Kind {
	case KindRelation:
		return fmt.Sprintf("%s %v", f.Op, f.Value)
	case KindColumn:
		return fmt.Sprintf("%s.%s(%s)", f.Table, f.Column, f.Next)
	case KindLogical:
		return fmt.Sprintf("%s%v", f.LogOp, f.Branches)
	case KindCrossTable:
		return fmt.Sprintf("%s{%s}", f.LinkName, f.Sub)
	}
	return "?"
}
