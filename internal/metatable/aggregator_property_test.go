package metatable

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/query/executor"
	"github.com/arkilian/metatables/internal/table"
)

// TestProperty_DistinctManifests checks that for any snapshot history, the
// aggregated set holds every referenced manifest exactly once, whatever the
// pool size.
func TestProperty_DistinctManifests(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("each referenced manifest appears exactly once", prop.ForAll(
		func(history [][]int, poolSize int) bool {
			pool := executor.NewPool(poolSize)
			defer pool.Close()

			referenced := make(map[string]struct{})
			mentions := 0
			sources := make([]iterable.CloseableIterable[table.ManifestFile], len(history))
			for i, ids := range history {
				manifests := make([]table.ManifestFile, len(ids))
				for j, id := range ids {
					path := fmt.Sprintf("m-%d.mtm", id)
					manifests[j] = table.ManifestFile{Path: path, Length: int64(id)}
					referenced[path] = struct{}{}
					mentions++
				}
				sources[i] = iterable.Of(manifests...)
			}

			result, seen, err := distinctManifests(context.Background(), sources, pool)
			if err != nil || seen != mentions || result.Len() != len(referenced) {
				return false
			}
			counts := make(map[string]int)
			for _, mf := range result.Items() {
				counts[mf.Key()]++
			}
			for path := range referenced {
				if counts[path] != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.SliceOf(gen.IntRange(0, 20))),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
