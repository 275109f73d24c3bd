package expr

import (
	"fmt"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/pkg/types"
)

// Bind resolves every predicate in e against schema. Column names may be
// dotted paths into nested structs. Literals are coerced to the field type.
// Null checks on required fields fold to constants.
func Bind(schema *types.Schema, e Expression, caseSensitive bool) (Expression, error) {
	switch x := e.(type) {
	case constant:
		return x, nil
	case *And:
		left, err := Bind(schema, x.Left, caseSensitive)
		if err != nil {
			return nil, err
		}
		right, err := Bind(schema, x.Right, caseSensitive)
		if err != nil {
			return nil, err
		}
		return NewAnd(left, right), nil
	case *Or:
		left, err := Bind(schema, x.Left, caseSensitive)
		if err != nil {
			return nil, err
		}
		right, err := Bind(schema, x.Right, caseSensitive)
		if err != nil {
			return nil, err
		}
		return NewOr(left, right), nil
	case *Not:
		child, err := Bind(schema, x.Child, caseSensitive)
		if err != nil {
			return nil, err
		}
		return NewNot(child), nil
	case *Predicate:
		return bindPredicate(schema, x, caseSensitive)
	case *BoundPredicate:
		return x, nil
	}
	return nil, metaerrors.NewExpressionError(metaerrors.CodeInvalidValue,
		fmt.Sprintf("cannot bind expression of type %T", e))
}

func bindPredicate(schema *types.Schema, p *Predicate, caseSensitive bool) (Expression, error) {
	acc, ok := schema.Accessor(p.Term, caseSensitive)
	if !ok {
		return nil, metaerrors.NewExpressionError(metaerrors.CodeUnknownField,
			fmt.Sprintf("cannot find field '%s' in struct: %s", p.Term, schema.AsStruct())).
			WithDetails(map[string]interface{}{"field": p.Term, "case_sensitive": caseSensitive})
	}
	field := acc.Field

	if p.Operation.isUnary() {
		if field.Required {
			if p.Operation == OpIsNull {
				return alwaysFalse, nil
			}
			return alwaysTrue, nil
		}
		return &BoundPredicate{Operation: p.Operation, Term: p.Term, Field: field, Accessor: acc}, nil
	}

	if _, ok := field.Type.(types.PrimitiveType); !ok {
		return nil, metaerrors.NewExpressionError(metaerrors.CodeInvalidValue,
			fmt.Sprintf("cannot compare nested field '%s' of type %s", p.Term, field.Type))
	}
	if (p.Operation == OpStartsWith || p.Operation == OpNotStartsWith) && field.Type != types.StringType {
		return nil, metaerrors.NewExpressionError(metaerrors.CodeInvalidValue,
			fmt.Sprintf("%s requires a string field, '%s' is %s", p.Operation, p.Term, field.Type))
	}
	if len(p.Literals) == 0 {
		return nil, metaerrors.NewExpressionError(metaerrors.CodeInvalidValue,
			fmt.Sprintf("%s on '%s' has no literal", p.Operation, p.Term))
	}

	literals := make([]any, 0, len(p.Literals))
	for _, lit := range p.Literals {
		v, err := types.Coerce(lit, field.Type)
		if err != nil || v == nil {
			return nil, metaerrors.NewExpressionError(metaerrors.CodeInvalidValue,
				fmt.Sprintf("invalid literal %v for field '%s' of type %s", lit, p.Term, field.Type))
		}
		literals = append(literals, v)
	}

	return &BoundPredicate{
		Operation: p.Operation,
		Term:      p.Term,
		Field:     field,
		Accessor:  acc,
		Literals:  literals,
	}, nil
}

// IsBound reports whether e contains no unbound predicates.
func IsBound(e Expression) bool {
	switch x := e.(type) {
	case *And:
		return IsBound(x.Left) && IsBound(x.Right)
	case *Or:
		return IsBound(x.Left) && IsBound(x.Right)
	case *Not:
		return IsBound(x.Child)
	case *Predicate:
		return false
	}
	return true
}
