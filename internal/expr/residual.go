package expr

import "github.com/arkilian/metatables/pkg/types"

// ResidualEvaluator finds the part of a row filter that partition values do
// not already decide, to be applied to every row of a partition.
type ResidualEvaluator interface {
	// ResidualFor returns the residual for rows in the given partition.
	ResidualFor(partition types.Row) Expression

	// Filter returns the filter the evaluator was built from.
	Filter() Expression
}

type unpartitioned struct {
	filter Expression
}

// Unpartitioned returns a residual evaluator for an unpartitioned view: no
// predicate is decided by partition values, so the residual of every
// partition is the whole filter. A nil filter is treated as always true.
func Unpartitioned(filter Expression) ResidualEvaluator {
	if filter == nil {
		filter = alwaysTrue
	}
	return &unpartitioned{filter: filter}
}

func (u *unpartitioned) ResidualFor(types.Row) Expression { return u.filter }

func (u *unpartitioned) Filter() Expression { return u.filter }
