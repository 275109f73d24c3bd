// Package expr provides the row-filter expression algebra used by scans:
// constructors, binding against a schema, row evaluation and residuals.
package expr

import (
	"fmt"
	"strings"

	"github.com/arkilian/metatables/pkg/types"
)

// Operation identifies the kind of an expression node.
type Operation int

const (
	OpTrue Operation = iota
	OpFalse
	OpAnd
	OpOr
	OpNot
	OpIsNull
	OpNotNull
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpEq
	OpNotEq
	OpIn
	OpNotIn
	OpStartsWith
	OpNotStartsWith
)

var operationNames = map[Operation]string{
	OpTrue:          "true",
	OpFalse:         "false",
	OpAnd:           "and",
	OpOr:            "or",
	OpNot:           "not",
	OpIsNull:        "is_null",
	OpNotNull:       "not_null",
	OpLt:            "lt",
	OpLtEq:          "lt_eq",
	OpGt:            "gt",
	OpGtEq:          "gt_eq",
	OpEq:            "eq",
	OpNotEq:         "not_eq",
	OpIn:            "in",
	OpNotIn:         "not_in",
	OpStartsWith:    "starts_with",
	OpNotStartsWith: "not_starts_with",
}

func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// Negate returns the operation matching exactly the rows op does not match.
func (op Operation) Negate() Operation {
	switch op {
	case OpTrue:
		return OpFalse
	case OpFalse:
		return OpTrue
	case OpIsNull:
		return OpNotNull
	case OpNotNull:
		return OpIsNull
	case OpLt:
		return OpGtEq
	case OpLtEq:
		return OpGt
	case OpGt:
		return OpLtEq
	case OpGtEq:
		return OpLt
	case OpEq:
		return OpNotEq
	case OpNotEq:
		return OpEq
	case OpIn:
		return OpNotIn
	case OpNotIn:
		return OpIn
	case OpStartsWith:
		return OpNotStartsWith
	case OpNotStartsWith:
		return OpStartsWith
	}
	return op
}

func (op Operation) isUnary() bool { return op == OpIsNull || op == OpNotNull }

func (op Operation) isSet() bool { return op == OpIn || op == OpNotIn }

// Expression is a boolean row filter.
type Expression interface {
	Op() Operation
	Negate() Expression
	String() string
}

type constant bool

var (
	alwaysTrue  Expression = constant(true)
	alwaysFalse Expression = constant(false)
)

// AlwaysTrue returns the expression matching every row.
func AlwaysTrue() Expression { return alwaysTrue }

// AlwaysFalse returns the expression matching no row.
func AlwaysFalse() Expression { return alwaysFalse }

func (c constant) Op() Operation {
	if c {
		return OpTrue
	}
	return OpFalse
}

func (c constant) Negate() Expression { return !c }

func (c constant) String() string {
	if c {
		return "true"
	}
	return "false"
}

// And matches rows matched by both children.
type And struct {
	Left, Right Expression
}

func (e *And) Op() Operation      { return OpAnd }
func (e *And) Negate() Expression { return NewOr(e.Left.Negate(), e.Right.Negate()) }
func (e *And) String() string     { return fmt.Sprintf("(%s and %s)", e.Left, e.Right) }

// Or matches rows matched by either child.
type Or struct {
	Left, Right Expression
}

func (e *Or) Op() Operation      { return OpOr }
func (e *Or) Negate() Expression { return NewAnd(e.Left.Negate(), e.Right.Negate()) }
func (e *Or) String() string     { return fmt.Sprintf("(%s or %s)", e.Left, e.Right) }

// Not matches rows its child does not match.
type Not struct {
	Child Expression
}

func (e *Not) Op() Operation      { return OpNot }
func (e *Not) Negate() Expression { return e.Child }
func (e *Not) String() string     { return fmt.Sprintf("not(%s)", e.Child) }

// NewAnd returns left AND right, folding constants.
func NewAnd(left, right Expression) Expression {
	switch {
	case left.Op() == OpFalse || right.Op() == OpFalse:
		return alwaysFalse
	case left.Op() == OpTrue:
		return right
	case right.Op() == OpTrue:
		return left
	}
	return &And{Left: left, Right: right}
}

// NewOr returns left OR right, folding constants.
func NewOr(left, right Expression) Expression {
	switch {
	case left.Op() == OpTrue || right.Op() == OpTrue:
		return alwaysTrue
	case left.Op() == OpFalse:
		return right
	case right.Op() == OpFalse:
		return left
	}
	return &Or{Left: left, Right: right}
}

// NewNot returns NOT child, folding constants and double negation.
func NewNot(child Expression) Expression {
	switch child.Op() {
	case OpTrue:
		return alwaysFalse
	case OpFalse:
		return alwaysTrue
	case OpNot:
		return child.(*Not).Child
	}
	return &Not{Child: child}
}

// Predicate is an unbound test of a named column against literals.
type Predicate struct {
	Operation Operation
	Term      string
	Literals  []any
}

func (p *Predicate) Op() Operation { return p.Operation }

func (p *Predicate) Negate() Expression {
	return &Predicate{Operation: p.Operation.Negate(), Term: p.Term, Literals: p.Literals}
}

func (p *Predicate) String() string {
	return predicateString(p.Operation, p.Term, p.Literals)
}

// BoundPredicate is a predicate resolved against a schema. Literals are in
// the canonical representation of the field type.
type BoundPredicate struct {
	Operation Operation
	Term      string
	Field     types.NestedField
	Accessor  types.Accessor
	Literals  []any
}

func (p *BoundPredicate) Op() Operation { return p.Operation }

func (p *BoundPredicate) Negate() Expression {
	return &BoundPredicate{
		Operation: p.Operation.Negate(),
		Term:      p.Term,
		Field:     p.Field,
		Accessor:  p.Accessor,
		Literals:  p.Literals,
	}
}

func (p *BoundPredicate) String() string {
	return predicateString(p.Operation, p.Term, p.Literals)
}

func predicateString(op Operation, term string, literals []any) string {
	switch op {
	case OpIsNull:
		return "is_null(" + term + ")"
	case OpNotNull:
		return "not_null(" + term + ")"
	case OpLt:
		return term + " < " + literalString(literals[0])
	case OpLtEq:
		return term + " <= " + literalString(literals[0])
	case OpGt:
		return term + " > " + literalString(literals[0])
	case OpGtEq:
		return term + " >= " + literalString(literals[0])
	case OpEq:
		return term + " == " + literalString(literals[0])
	case OpNotEq:
		return term + " != " + literalString(literals[0])
	case OpStartsWith:
		return term + " startsWith " + literalString(literals[0])
	case OpNotStartsWith:
		return term + " notStartsWith " + literalString(literals[0])
	case OpIn, OpNotIn:
		parts := make([]string, len(literals))
		for i, l := range literals {
			parts[i] = literalString(l)
		}
		return fmt.Sprintf("%s %s (%s)", term, op, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s(%s)", op, term)
}

func literalString(v any) string {
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case []byte:
		return fmt.Sprintf("X'%X'", x)
	}
	return fmt.Sprint(v)
}

func unary(op Operation, term string) Expression {
	return &Predicate{Operation: op, Term: term}
}

func comparison(op Operation, term string, value any) Expression {
	return &Predicate{Operation: op, Term: term, Literals: []any{value}}
}

// IsNull matches rows where term is null.
func IsNull(term string) Expression { return unary(OpIsNull, term) }

// NotNull matches rows where term is not null.
func NotNull(term string) Expression { return unary(OpNotNull, term) }

func LessThan(term string, value any) Expression { return comparison(OpLt, term, value) }

func LessThanOrEqual(term string, value any) Expression { return comparison(OpLtEq, term, value) }

func GreaterThan(term string, value any) Expression { return comparison(OpGt, term, value) }

func GreaterThanOrEqual(term string, value any) Expression { return comparison(OpGtEq, term, value) }

func Equal(term string, value any) Expression { return comparison(OpEq, term, value) }

func NotEqual(term string, value any) Expression { return comparison(OpNotEq, term, value) }

func StartsWith(term, prefix string) Expression { return comparison(OpStartsWith, term, prefix) }

func NotStartsWith(term, prefix string) Expression { return comparison(OpNotStartsWith, term, prefix) }

// In matches rows where term equals one of values. An empty set matches
// nothing and a single value is an equality.
func In(term string, values ...any) Expression {
	switch len(values) {
	case 0:
		return alwaysFalse
	case 1:
		return Equal(term, values[0])
	}
	return &Predicate{Operation: OpIn, Term: term, Literals: values}
}

// NotIn matches rows where term is not null and equals none of values.
func NotIn(term string, values ...any) Expression {
	switch len(values) {
	case 0:
		return alwaysTrue
	case 1:
		return NotEqual(term, values[0])
	}
	return &Predicate{Operation: OpNotIn, Term: term, Literals: values}
}
