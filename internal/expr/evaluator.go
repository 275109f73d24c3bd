package expr

import (
	"math"
	"strings"

	"github.com/arkilian/metatables/pkg/types"
)

// Evaluator tests rows of one schema against a bound expression.
type Evaluator struct {
	bound Expression
}

// NewEvaluator binds e to schema and returns an evaluator for its rows.
func NewEvaluator(schema *types.Schema, e Expression, caseSensitive bool) (*Evaluator, error) {
	bound, err := Bind(schema, e, caseSensitive)
	if err != nil {
		return nil, err
	}
	return &Evaluator{bound: bound}, nil
}

// Expression returns the bound expression.
func (ev *Evaluator) Expression() Expression { return ev.bound }

// Eval reports whether row matches. A null or NaN value fails every
// comparison except not_eq, not_in and not_starts_with, which it passes.
func (ev *Evaluator) Eval(row types.Row) bool {
	return eval(ev.bound, row)
}

func eval(e Expression, row types.Row) bool {
	switch x := e.(type) {
	case constant:
		return bool(x)
	case *And:
		return eval(x.Left, row) && eval(x.Right, row)
	case *Or:
		return eval(x.Left, row) || eval(x.Right, row)
	case *Not:
		return !eval(x.Child, row)
	case *BoundPredicate:
		return evalPredicate(x, x.Accessor.Get(row))
	}
	// Unbound predicates never match.
	return false
}

func evalPredicate(p *BoundPredicate, v any) bool {
	switch p.Operation {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	}
	if v == nil || isNaN(v) {
		return p.Operation == OpNotEq || p.Operation == OpNotIn || p.Operation == OpNotStartsWith
	}

	switch p.Operation {
	case OpLt, OpLtEq, OpGt, OpGtEq, OpEq, OpNotEq:
		c, ok := types.Compare(v, p.Literals[0])
		if !ok {
			return false
		}
		switch p.Operation {
		case OpLt:
			return c < 0
		case OpLtEq:
			return c <= 0
		case OpGt:
			return c > 0
		case OpGtEq:
			return c >= 0
		case OpEq:
			return c == 0
		default:
			return c != 0
		}
	case OpIn, OpNotIn:
		found := false
		for _, lit := range p.Literals {
			if c, ok := types.Compare(v, lit); ok && c == 0 {
				found = true
				break
			}
		}
		return found == (p.Operation == OpIn)
	case OpStartsWith, OpNotStartsWith:
		s, ok := v.(string)
		if !ok {
			return false
		}
		prefix, _ := p.Literals[0].(string)
		return strings.HasPrefix(s, prefix) == (p.Operation == OpStartsWith)
	}
	return false
}

func isNaN(v any) bool {
	switch x := v.(type) {
	case float32:
		return math.IsNaN(float64(x))
	case float64:
		return math.IsNaN(x)
	}
	return false
}
