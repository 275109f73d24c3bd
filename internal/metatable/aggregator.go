package metatable

import (
	"context"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
)

// snapshotManifests lazily reads one snapshot's manifest list when iterated.
type snapshotManifests struct {
	io       storage.FileIO
	snapshot *table.Snapshot
}

func (s snapshotManifests) Iterator(ctx context.Context) iterable.Iterator[table.ManifestFile] {
	manifests, err := s.snapshot.AllManifests(ctx, s.io)
	if err != nil {
		return iterable.Failed[table.ManifestFile](err)
	}
	return iterable.Of(manifests...).Iterator(ctx)
}

func (snapshotManifests) Close() error { return nil }

// AllManifestFiles reads the manifest list of every snapshot on pool and
// returns the distinct manifests among them, identified by ManifestFile.Key.
// All reads complete before it returns; the result is materialized and its
// Close is a no-op.
//
// The first manifest-list read failure is returned as-is. A nil pool reads
// the lists one after another.
func AllManifestFiles(ctx context.Context, io storage.FileIO, snapshots []*table.Snapshot, pool iterable.Pool) (*iterable.Materialized[table.ManifestFile], error) {
	manifests, _, err := aggregateManifests(ctx, io, snapshots, pool)
	return manifests, err
}

func aggregateManifests(ctx context.Context, io storage.FileIO, snapshots []*table.Snapshot, pool iterable.Pool) (*iterable.Materialized[table.ManifestFile], int, error) {
	sources := make([]iterable.CloseableIterable[table.ManifestFile], len(snapshots))
	for i, snap := range snapshots {
		sources[i] = snapshotManifests{io: io, snapshot: snap}
	}
	return distinctManifests(ctx, sources, pool)
}

// distinctManifests drains sources concurrently into a set keyed by manifest
// identity. It also returns the number of manifest references seen before
// deduplication.
func distinctManifests(ctx context.Context, sources []iterable.CloseableIterable[table.ManifestFile], pool iterable.Pool) (result *iterable.Materialized[table.ManifestFile], mentions int, err error) {
	parallel := iterable.NewParallel(pool, sources)
	defer func() {
		closeErr := parallel.Close()
		if err == nil && closeErr != nil {
			result, err = nil, metaerrors.NewIOError(metaerrors.CodeCloseFailed,
				"failed to close parallel iterable", closeErr)
		}
	}()

	seen := make(map[string]struct{})
	var distinct []table.ManifestFile
	it := parallel.Iterator(ctx)
	for it.Next() {
		mentions++
		mf := it.Value()
		if _, ok := seen[mf.Key()]; ok {
			continue
		}
		seen[mf.Key()] = struct{}{}
		distinct = append(distinct, mf)
	}
	if err := it.Err(); err != nil {
		return nil, mentions, err
	}
	return iterable.Of(distinct...), mentions, nil
}
