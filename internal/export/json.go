package export

import (
	"fmt"
	"sort"

	"github.com/arkilian/metatables/pkg/types"
)

// JSONRows flattens rows shaped by schema into objects keyed by dotted
// column name.
func JSONRows(schema *types.Schema, rows []types.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		flat := types.Flatten(schema, row)
		for k, v := range flat {
			flat[k] = JSONValue(v)
		}
		out[i] = flat
	}
	return out
}

// JSONValue converts a canonical value into one encoding/json can marshal.
// Maps keyed by field id become objects with string keys.
func JSONValue(v any) any {
	switch x := v.(type) {
	case map[any]any:
		keys := make([]any, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if c, ok := types.Compare(keys[i], keys[j]); ok {
				return c < 0
			}
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
		out := make(map[string]any, len(x))
		for _, k := range keys {
			out[fmt.Sprint(k)] = JSONValue(x[k])
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = JSONValue(e)
		}
		return out
	case types.Row:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = JSONValue(e)
		}
		return out
	}
	return v
}
