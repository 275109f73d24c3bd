package executor

import (
	"fmt"
	"sort"
	"strings"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/pkg/types"
)

// SortKey orders result rows by a dotted column name.
type SortKey struct {
	Column string
	Desc   bool
}

// ParseSortKey parses "column [asc|desc]".
func ParseSortKey(s string) (SortKey, error) {
	parts := strings.Fields(s)
	switch {
	case len(parts) == 1:
		return SortKey{Column: parts[0]}, nil
	case len(parts) == 2 && strings.EqualFold(parts[1], "asc"):
		return SortKey{Column: parts[0]}, nil
	case len(parts) == 2 && strings.EqualFold(parts[1], "desc"):
		return SortKey{Column: parts[0], Desc: true}, nil
	}
	return SortKey{}, metaerrors.NewValidationError(metaerrors.CodeInvalidValue,
		fmt.Sprintf("invalid sort key %q: expected \"column [asc|desc]\"", s))
}

// collector consumes rows from task goroutines with memory-bounded
// collection. Without sort keys, collection stops once limit rows are held.
type collector struct {
	schema         *types.Schema
	orderBy        []SortKey
	limit          int64
	maxMemoryBytes int64
}

type collected struct {
	rows      []types.Row
	truncated bool
}

// collect reads rows until rowChan is closed. It closes done when no more
// rows are wanted; producers must then stop sending.
func (c *collector) collect(rowChan <-chan types.Row, done chan struct{}) collected {
	var out collected
	var memUsed int64
	canTerminateEarly := len(c.orderBy) == 0 && c.limit > 0
	doneClosed := false
	stop := func() {
		if !doneClosed {
			close(done)
			doneClosed = true
		}
	}

	for row := range rowChan {
		if doneClosed {
			continue // drain
		}
		size := estimateRowSize(row)
		if memUsed+size > c.maxMemoryBytes {
			out.truncated = true
			stop()
			continue
		}
		out.rows = append(out.rows, row)
		memUsed += size

		if canTerminateEarly && int64(len(out.rows)) >= c.limit {
			stop()
		}
	}
	return out
}

// finish sorts and applies the limit.
func (c *collector) finish(rows []types.Row) ([]types.Row, error) {
	if len(c.orderBy) > 0 && len(rows) > 0 {
		if err := sortRows(c.schema, rows, c.orderBy); err != nil {
			return nil, err
		}
	}
	if c.limit > 0 && int64(len(rows)) > c.limit {
		rows = rows[:c.limit]
	}
	return rows, nil
}

// sortRows sorts rows by the given keys. Nulls sort first.
func sortRows(schema *types.Schema, rows []types.Row, keys []SortKey) error {
	accessors := make([]types.Accessor, len(keys))
	for i, k := range keys {
		acc, ok := schema.Accessor(k.Column, false)
		if !ok {
			return metaerrors.NewExpressionError(metaerrors.CodeUnknownField,
				fmt.Sprintf("cannot sort by %s: column not found in result", k.Column))
		}
		accessors[i] = acc
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, key := range keys {
			cmp := compareValues(accessors[k].Get(rows[i]), accessors[k].Get(rows[j]))
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

// compareValues compares two values for sorting.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1 // NULL sorts first
	}
	if b == nil {
		return 1
	}
	if cmp, ok := types.Compare(a, b); ok {
		return cmp
	}

	// Fallback: compare string representations
	sa, sb := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// estimateRowSize returns a rough estimate of the memory used by a row.
func estimateRowSize(row types.Row) int64 {
	var size int64 = 24 // slice header overhead
	for _, v := range row {
		size += estimateValueSize(v)
	}
	return size
}

func estimateValueSize(v any) int64 {
	switch val := v.(type) {
	case string:
		return int64(len(val)) + 16
	case []byte:
		return int64(len(val)) + 24
	case types.Row:
		return estimateRowSize(val)
	case []any:
		size := int64(24)
		for _, e := range val {
			size += estimateValueSize(e)
		}
		return size
	case map[any]any:
		size := int64(48)
		for k, mv := range val {
			size += estimateValueSize(k) + estimateValueSize(mv)
		}
		return size
	default:
		return 16 // int32, int64, float64, nil, etc.
	}
}
