package metatable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/expr"
	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/query/executor"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// faultyIO counts reads and fails reads of chosen locations.
type faultyIO struct {
	storage.FileIO

	mu     sync.Mutex
	reads  map[string]int
	failOn map[string]error
}

func newFaultyIO(t *testing.T) *faultyIO {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return &faultyIO{FileIO: local, reads: map[string]int{}, failOn: map[string]error{}}
}

func (f *faultyIO) Read(ctx context.Context, location string) ([]byte, error) {
	f.mu.Lock()
	f.reads[location]++
	err := f.failOn[location]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.FileIO.Read(ctx, location)
}

func (f *faultyIO) readsOf(location string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[location]
}

func eventsSchema() *types.Schema {
	return types.NewSchema(0,
		types.Required(1, "id", types.LongType),
		types.Optional(2, "category", types.StringType),
		types.Optional(3, "ts", types.TimestampType),
	)
}

// history builds table metadata by hand so tests control exactly which
// manifests each snapshot references.
type history struct {
	t    *testing.T
	io   *faultyIO
	meta *table.TableMetadata
}

func newHistory(t *testing.T, spec table.PartitionSpec) *history {
	t.Helper()
	meta, err := table.NewTableMetadata("db/events", eventsSchema(), spec, nil)
	require.NoError(t, err)
	return &history{t: t, io: newFaultyIO(t), meta: meta}
}

func manifestPath(name string) string { return "db/events/metadata/" + name + ".mtm" }

func manifestListPath(id int64) string { return fmt.Sprintf("db/events/metadata/snap-%d.mtl", id) }

// manifest writes a manifest with one ADDED entry per file.
func (h *history) manifest(name string, snapshotID int64, files ...string) table.ManifestFile {
	h.t.Helper()
	entries := make([]table.ManifestEntry, len(files))
	for i, f := range files {
		id := snapshotID
		entries[i] = table.ManifestEntry{
			Status:     table.EntryAdded,
			SnapshotID: &id,
			DataFile: table.DataFile{
				FilePath:    f,
				FileFormat:  "parquet",
				RecordCount: int64(10 * (i + 1)),
				Partition:   map[int]any{},
			},
		}
	}
	data, err := table.EncodeManifest(0, table.ManifestContentData, entries)
	require.NoError(h.t, err)
	require.NoError(h.t, h.io.Write(context.Background(), manifestPath(name), data))
	return table.ManifestFile{
		Path:            manifestPath(name),
		Length:          int64(len(data)),
		AddedSnapshotID: snapshotID,
		AddedFilesCount: len(files),
	}
}

// snapshot adds a snapshot referencing manifests and makes it current.
func (h *history) snapshot(id int64, manifests ...table.ManifestFile) *table.Snapshot {
	h.t.Helper()
	snap := &table.Snapshot{
		SnapshotID:     id,
		SequenceNumber: int64(len(h.meta.Snapshots) + 1),
		ManifestList:   manifestListPath(id),
		Summary:        map[string]string{"operation": table.OperationAppend},
	}
	data, err := table.EncodeManifestList(snap, manifests)
	require.NoError(h.t, err)
	require.NoError(h.t, h.io.Write(context.Background(), snap.ManifestList, data))

	h.meta.Snapshots = append(h.meta.Snapshots, snap)
	h.meta.CurrentSnapshotID = &snap.SnapshotID
	return snap
}

func (h *history) table() *table.Table {
	return table.New("db.events", table.NewMemoryOperations(h.io, "db/events", h.meta))
}

func planAll(t *testing.T, s scan.TableScan) []scan.FileScanTask {
	t.Helper()
	planned, err := s.PlanFiles(context.Background())
	require.NoError(t, err)
	tasks, err := iterable.Collect(context.Background(), planned)
	require.NoError(t, err)
	return tasks
}

func manifestPaths(tasks []scan.FileScanTask) []string {
	paths := make([]string, len(tasks))
	for i, task := range tasks {
		paths[i] = task.Manifest().Path
	}
	sort.Strings(paths)
	return paths
}

func TestResolveSchema_DropsEmptyPartition(t *testing.T) {
	schema := ResolveSchema(types.NewStructType())

	_, ok := schema.FindField(table.PartitionFieldID)
	assert.False(t, ok)
	_, ok = schema.FindFieldByName("data_file.file_path", true)
	assert.True(t, ok)
	_, ok = schema.FindFieldByName("status", true)
	assert.True(t, ok)
}

func TestResolveSchema_KeepsPartition(t *testing.T) {
	partitionType := types.NewStructType(types.Optional(1000, "ts_day", types.DateType))
	schema := ResolveSchema(partitionType)

	f, ok := schema.FindField(table.PartitionFieldID)
	require.True(t, ok)
	assert.Equal(t, partitionType.Fields, f.Type.(*types.StructType).Fields)
}

func TestAllEntriesTable_SchemaMergesHistoricalPartitions(t *testing.T) {
	h := newHistory(t, table.PartitionSpec{Fields: []table.PartitionField{
		{SourceID: 3, Name: "ts_day", Transform: "day"},
	}})
	tbl := h.table()
	require.NoError(t, tbl.UpdateSpec(context.Background(), table.PartitionSpec{Fields: []table.PartitionField{
		{SourceID: 2, Name: "category", Transform: "identity"},
	}}))

	schema, err := NewAllEntriesTable(tbl).Schema()
	require.NoError(t, err)

	f, ok := schema.FindField(table.PartitionFieldID)
	require.True(t, ok)
	fields := f.Type.(*types.StructType).Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "ts_day", fields[0].Name)
	assert.Equal(t, "category", fields[1].Name)
}

func TestAllEntriesTable_UnpartitionedSchemaHasNoPartition(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	schema, err := NewAllEntriesTable(h.table()).Schema()
	require.NoError(t, err)

	_, ok := schema.FindFieldByName("data_file.partition", true)
	assert.False(t, ok)
}

func TestAllEntriesScan_DeduplicatesAcrossSnapshots(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	a := h.manifest("a", 1, "f1", "f2")
	b := h.manifest("b", 1, "f3")
	c := h.manifest("c", 2, "f4")
	h.snapshot(1, a, b)
	h.snapshot(2, b, c)

	pool := executor.NewPool(2)
	defer pool.Close()

	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	tasks := planAll(t, s.PlanWith(pool))

	require.Len(t, tasks, 3)
	assert.Equal(t, []string{a.Path, b.Path, c.Path}, manifestPaths(tasks))

	specJSON, err := table.SpecToJSON(table.Unpartitioned())
	require.NoError(t, err)
	for _, task := range tasks {
		assert.Equal(t, tasks[0].SchemaJSON(), task.SchemaJSON())
		assert.Equal(t, specJSON, task.SpecJSON())
		assert.Same(t, tasks[0].Schema(), task.Schema())
		assert.Equal(t, h.meta.SpecsByID(), task.SpecsByID())
		assert.Equal(t, h.io, task.IO())
	}

	// Each manifest list read once, no manifest read at planning time.
	assert.Equal(t, 1, h.io.readsOf(manifestListPath(1)))
	assert.Equal(t, 1, h.io.readsOf(manifestListPath(2)))
	assert.Equal(t, 0, h.io.readsOf(b.Path))
}

func TestAllEntriesScan_IncludesManifestsOfOldSnapshots(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	old := h.manifest("old", 1, "f1")
	current := h.manifest("current", 2, "f2")
	h.snapshot(1, old)
	h.snapshot(2, current)

	all, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	assert.Equal(t, []string{current.Path, old.Path}, manifestPaths(planAll(t, all)))

	entries, err := NewEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	assert.Equal(t, []string{current.Path}, manifestPaths(planAll(t, entries)))
	assert.Equal(t, []string{old.Path}, manifestPaths(planAll(t, entries.UseSnapshot(1))))
}

func TestAllEntriesScan_IgnoresSnapshotSelection(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	h.snapshot(1, h.manifest("a", 1, "f1"))
	h.snapshot(2, h.manifest("b", 2, "f2"))

	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	assert.Len(t, planAll(t, s.UseSnapshot(1)), 2)
	assert.Len(t, planAll(t, s.UseSnapshot(999)), 2)
}

func TestAllEntriesScan_ReadFailureYieldsNoTasks(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	h.snapshot(1, h.manifest("a", 1, "f1"))
	h.snapshot(2, h.manifest("b", 2, "f2"))
	h.snapshot(3, h.manifest("c", 3, "f3"))

	injected := errors.New("connection reset")
	h.io.failOn[manifestListPath(2)] = injected

	for _, size := range []int{1, 3} {
		t.Run(fmt.Sprintf("pool=%d", size), func(t *testing.T) {
			pool := executor.NewPool(size)
			defer pool.Close()

			s, err := NewAllEntriesTable(h.table()).NewScan()
			require.NoError(t, err)
			tasks, err := s.PlanWith(pool).PlanFiles(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, injected)
			assert.Nil(t, tasks)
			assert.NotEqual(t, metaerrors.CodeCloseFailed, metaerrors.GetCode(err))
		})
	}
}

func TestAllEntriesScan_ResidualWiring(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	h.snapshot(1, h.manifest("a", 1, "f1"))

	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	filtered := s.Filter(expr.Equal("status", int32(table.EntryDeleted)))

	sample := make(types.Row, len(s.Schema().Fields()))
	sample[0] = int32(table.EntryAdded)
	sample[4] = make(types.Row, len(table.DataFileType(types.NewStructType()).Fields)-1)

	task := planAll(t, filtered)[0]
	assert.Equal(t, expr.OpEq, task.Residual().Filter().Op())
	ev, err := expr.NewEvaluator(task.Schema(), task.Residual().ResidualFor(nil), true)
	require.NoError(t, err)
	assert.False(t, ev.Eval(sample))

	task = planAll(t, filtered.IgnoreResiduals())[0]
	assert.Equal(t, expr.OpTrue, task.Residual().Filter().Op())
	ev, err = expr.NewEvaluator(task.Schema(), task.Residual().ResidualFor(nil), true)
	require.NoError(t, err)
	assert.True(t, ev.Eval(sample))
}

func TestAllEntriesScan_Idempotent(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	a := h.manifest("a", 1, "f1")
	h.snapshot(1, a)
	h.snapshot(2, a, h.manifest("b", 2, "f2"))

	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	first := planAll(t, s)
	second := planAll(t, s)

	assert.Equal(t, manifestPaths(first), manifestPaths(second))
	assert.Equal(t, first[0].SchemaJSON(), second[0].SchemaJSON())
}

func TestManifestScan_RefinementDoesNotMutate(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)

	left := s.Filter(expr.Equal("status", 1))
	right := s.CaseSensitive(false).Select("status")

	assert.Equal(t, expr.OpTrue, s.Context().RowFilter().Op())
	assert.True(t, s.Context().CaseSensitive())
	assert.Equal(t, expr.OpEq, left.Context().RowFilter().Op())
	assert.True(t, left.Context().CaseSensitive())
	assert.Equal(t, expr.OpTrue, right.Context().RowFilter().Op())
	assert.Equal(t, []string{"status"}, right.Context().SelectedColumns())
	assert.Equal(t, string(AllEntries), s.TableType())
}

func TestEntriesScan_SnapshotSelection(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	s, err := NewEntriesTable(h.table()).NewScan()
	require.NoError(t, err)
	assert.Empty(t, planAll(t, s))

	_, err = s.UseSnapshot(42).PlanFiles(context.Background())
	require.Error(t, err)
	assert.Equal(t, metaerrors.CodeSnapshotNotFound, metaerrors.GetCode(err))
}

func TestManifestReadTask_Rows(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	a := h.manifest("a", 1, "f1", "f2", "f3")
	h.snapshot(1, a)

	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)

	task := planAll(t, s.Filter(expr.GreaterThan("data_file.record_count", int64(10))))[0]
	rowsIter, err := task.Rows(context.Background())
	require.NoError(t, err)
	rows, err := iterable.Collect(context.Background(), rowsIter)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	path, ok := task.Schema().Accessor("data_file.file_path", true)
	require.True(t, ok)
	assert.Equal(t, "f2", path.Get(rows[0]))
	assert.Equal(t, "f3", path.Get(rows[1]))
	for _, row := range rows {
		assert.Len(t, row[4].(types.Row), len(table.DataFileType(types.NewStructType()).Fields)-1)
	}
}

func TestManifestReadTask_CaseInsensitiveResidual(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	h.snapshot(1, h.manifest("a", 1, "f1", "f2"))

	s, err := NewAllEntriesTable(h.table()).NewScan()
	require.NoError(t, err)

	task := planAll(t, s.CaseSensitive(false).Filter(expr.Equal("DATA_FILE.FILE_PATH", "f2")))[0]
	rowsIter, err := task.Rows(context.Background())
	require.NoError(t, err)
	rows, err := iterable.Collect(context.Background(), rowsIter)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	task = planAll(t, s.Filter(expr.Equal("DATA_FILE.FILE_PATH", "f2")))[0]
	_, err = task.Rows(context.Background())
	assert.Equal(t, metaerrors.CodeUnknownField, metaerrors.GetCode(err))
}

func TestManifestReadTask_PartitionedRows(t *testing.T) {
	h := newHistory(t, table.PartitionSpec{Fields: []table.PartitionField{
		{SourceID: 2, Name: "category", Transform: "identity"},
	}})
	tbl := h.table()
	_, err := tbl.NewAppend().AppendFiles(
		table.DataFile{FilePath: "x.parquet", FileFormat: "parquet", RecordCount: 1, Partition: map[int]any{1000: "a"}},
		table.DataFile{FilePath: "y.parquet", FileFormat: "parquet", RecordCount: 1, Partition: map[int]any{1000: "b"}},
	).Commit(context.Background())
	require.NoError(t, err)

	s, err := NewAllEntriesTable(tbl).NewScan()
	require.NoError(t, err)
	tasks := planAll(t, s.Filter(expr.Equal("data_file.partition.category", "b")))
	require.Len(t, tasks, 1)

	rowsIter, err := tasks[0].Rows(context.Background())
	require.NoError(t, err)
	rows, err := iterable.Collect(context.Background(), rowsIter)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	acc, ok := tasks[0].Schema().Accessor("data_file.file_path", true)
	require.True(t, ok)
	assert.Equal(t, "y.parquet", acc.Get(rows[0]))
}

type closeFailing struct {
	*iterable.Materialized[table.ManifestFile]
	err error
}

func (c closeFailing) Close() error { return c.err }

func TestDistinctManifests_WrapsCloseFailure(t *testing.T) {
	cause := errors.New("release failed")
	sources := []iterable.CloseableIterable[table.ManifestFile]{
		iterable.Of(table.ManifestFile{Path: "a"}),
		closeFailing{Materialized: iterable.Of(table.ManifestFile{Path: "b"}), err: cause},
	}

	result, _, err := distinctManifests(context.Background(), sources, nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, metaerrors.ErrCategoryIO, metaerrors.GetCategory(err))
	assert.Equal(t, metaerrors.CodeCloseFailed, metaerrors.GetCode(err))
	assert.True(t, strings.Contains(err.Error(), "failed to close parallel iterable"))
	assert.ErrorIs(t, err, cause)
}

func TestDistinctManifests_Materialized(t *testing.T) {
	sources := []iterable.CloseableIterable[table.ManifestFile]{
		iterable.Of(table.ManifestFile{Path: "a"}, table.ManifestFile{Path: "b"}),
		iterable.Of(table.ManifestFile{Path: "b"}),
	}
	result, mentions, err := distinctManifests(context.Background(), sources, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, mentions)

	// Re-iterable with a no-op close.
	for i := 0; i < 2; i++ {
		items, err := iterable.Collect(context.Background(), iterable.CloseableIterable[table.ManifestFile](result))
		require.NoError(t, err)
		assert.Len(t, items, 2)
	}
}

func TestParseTypeAndByName(t *testing.T) {
	kind, err := ParseType("all_entries")
	require.NoError(t, err)
	assert.Equal(t, AllEntries, kind)

	kind, err = ParseType("Entries")
	require.NoError(t, err)
	assert.Equal(t, Entries, kind)

	_, err = ParseType("snapshots")
	assert.Equal(t, metaerrors.CodeUnknownMetadataTable, metaerrors.GetCode(err))

	h := newHistory(t, table.Unpartitioned())
	mt, err := ByName(h.table(), AllEntries)
	require.NoError(t, err)
	assert.Equal(t, "db.events.all_entries", mt.Name())
	assert.Equal(t, AllEntries, mt.Type())

	_, err = ByName(h.table(), MetadataTableType("FILES"))
	assert.Error(t, err)
}

type recordingObserver struct {
	tableType string
	stats     PlanStats
	err       error
}

func (r *recordingObserver) ObservePlan(tableType string, stats PlanStats, err error) {
	r.tableType, r.stats, r.err = tableType, stats, err
}

func TestManifestScan_ReportsPlanStats(t *testing.T) {
	h := newHistory(t, table.Unpartitioned())
	a := h.manifest("a", 1, "f1")
	h.snapshot(1, a)
	h.snapshot(2, a, h.manifest("b", 2, "f2"))

	observer := &recordingObserver{}
	s, err := NewAllEntriesTable(h.table(), WithObserver(observer)).NewScan()
	require.NoError(t, err)
	planAll(t, s)

	assert.Equal(t, string(AllEntries), observer.tableType)
	assert.NoError(t, observer.err)
	assert.Equal(t, 2, observer.stats.Snapshots)
	assert.Equal(t, 3, observer.stats.ManifestMentions)
	assert.Equal(t, 2, observer.stats.Manifests)
}
