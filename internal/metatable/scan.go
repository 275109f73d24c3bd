package metatable

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/expr"
	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/table"
)

// ManifestScan plans one ManifestReadTask per distinct manifest. For
// ALL_ENTRIES the manifests come from every snapshot and snapshot selection
// is ignored; for ENTRIES they come from the selected or current snapshot.
type ManifestScan struct {
	scan.Base
	kind MetadataTableType
	opts options
}

var _ scan.TableScan = (*ManifestScan)(nil)

func newManifestScan(tbl *table.Table, kind MetadataTableType, opts options) (*ManifestScan, error) {
	schema, err := entriesSchema(tbl)
	if err != nil {
		return nil, err
	}
	return &ManifestScan{Base: scan.NewBase(tbl, schema, scan.NewContext()), kind: kind, opts: opts}, nil
}

// TableType returns the metadata table type, e.g. "ALL_ENTRIES".
func (s *ManifestScan) TableType() string { return string(s.kind) }

// refine returns a scan over the same table and schema with ctx.
func (s *ManifestScan) refine(ctx scan.Context) scan.TableScan {
	return &ManifestScan{Base: scan.NewBase(s.Table(), s.Schema(), ctx), kind: s.kind, opts: s.opts}
}

// Filter returns a scan whose row filter is the current one AND e.
func (s *ManifestScan) Filter(e expr.Expression) scan.TableScan {
	return s.refine(s.Context().WithRowFilter(e))
}

// IgnoreResiduals returns a scan whose tasks keep every row.
func (s *ManifestScan) IgnoreResiduals() scan.TableScan {
	return s.refine(s.Context().WithIgnoreResiduals())
}

// CaseSensitive returns a scan that binds column names with the given
// case sensitivity.
func (s *ManifestScan) CaseSensitive(caseSensitive bool) scan.TableScan {
	return s.refine(s.Context().WithCaseSensitive(caseSensitive))
}

// IncludeColumnStats returns a scan flagged to keep column statistics.
// Rows always carry them, so only planning logs reflect the flag.
func (s *ManifestScan) IncludeColumnStats() scan.TableScan {
	return s.refine(s.Context().WithColStats())
}

// UseSnapshot returns a scan of snapshotID. ALL_ENTRIES scans keep reading
// every snapshot.
func (s *ManifestScan) UseSnapshot(snapshotID int64) scan.TableScan {
	return s.refine(s.Context().WithSnapshotID(snapshotID))
}

// Select returns a scan projecting columns, which may be dotted nested names.
func (s *ManifestScan) Select(columns ...string) scan.TableScan {
	return s.refine(s.Context().WithSelectedColumns(columns...))
}

// PlanWith returns a scan that reads manifest lists on pool.
func (s *ManifestScan) PlanWith(pool iterable.Pool) scan.TableScan {
	return s.refine(s.Context().WithPool(pool))
}

// snapshots returns the snapshots whose manifests the scan reads.
func (s *ManifestScan) snapshots() ([]*table.Snapshot, error) {
	if s.kind == AllEntries {
		return s.Table().Snapshots(), nil
	}
	meta := s.Table().Metadata()
	if id, ok := s.Context().SnapshotID(); ok {
		snap := meta.SnapshotByID(id)
		if snap == nil {
			return nil, metaerrors.NewMetadataError(metaerrors.CodeSnapshotNotFound,
				fmt.Sprintf("cannot find snapshot %d", id), nil).
				WithDetails(map[string]interface{}{"snapshot_id": id})
		}
		return []*table.Snapshot{snap}, nil
	}
	if snap := meta.CurrentSnapshot(); snap != nil {
		return []*table.Snapshot{snap}, nil
	}
	return nil, nil
}

// PlanFiles resolves the manifest set, then lazily wraps each manifest in a
// task. Manifest lists are read before PlanFiles returns, so a read failure
// yields no tasks at all.
func (s *ManifestScan) PlanFiles(ctx context.Context) (iterable.CloseableIterable[scan.FileScanTask], error) {
	start := time.Now()
	tasks, stats, err := s.plan(ctx)
	stats.Duration = time.Since(start)
	s.opts.observe(s.TableType(), stats, err)

	if err != nil {
		level.Error(s.opts.logger).Log("msg", "failed to plan scan", "table", s.Table().Name(),
			"table_type", s.TableType(), "err", err)
		return nil, err
	}
	level.Debug(s.opts.logger).Log("msg", "planned scan", "table", s.Table().Name(),
		"table_type", s.TableType(), "snapshots", stats.Snapshots,
		"manifest_mentions", stats.ManifestMentions, "manifests", stats.Manifests,
		"column_stats", s.Context().ColStats(), "duration", stats.Duration)
	return tasks, nil
}

func (s *ManifestScan) plan(ctx context.Context) (iterable.CloseableIterable[scan.FileScanTask], PlanStats, error) {
	var stats PlanStats

	snapshots, err := s.snapshots()
	if err != nil {
		return nil, stats, err
	}
	stats.Snapshots = len(snapshots)

	manifests, mentions, err := aggregateManifests(ctx, s.Table().IO(), snapshots, s.Context().Pool())
	stats.ManifestMentions = mentions
	if err != nil {
		return nil, stats, err
	}
	stats.Manifests = manifests.Len()

	factory, err := newTaskFactory(s.Table(), s.Schema(), s.EffectiveFilter(), s.Context().CaseSensitive())
	if err != nil {
		return nil, stats, err
	}
	return iterable.Transform[table.ManifestFile, scan.FileScanTask](manifests, factory.task), stats, nil
}
