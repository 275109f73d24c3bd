package metatable

import (
	"context"

	"github.com/arkilian/metatables/internal/expr"
	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// ManifestReadTask reads the entries of one manifest as rows.
type ManifestReadTask struct {
	io            storage.FileIO
	manifest      table.ManifestFile
	schema        *types.Schema
	schemaJSON    string
	specJSON      string
	residual      expr.ResidualEvaluator
	specsByID     map[int]table.PartitionSpec
	caseSensitive bool
}

var _ scan.FileScanTask = (*ManifestReadTask)(nil)

func (t *ManifestReadTask) IO() storage.FileIO { return t.io }

func (t *ManifestReadTask) Manifest() table.ManifestFile { return t.manifest }

func (t *ManifestReadTask) Schema() *types.Schema { return t.schema }

func (t *ManifestReadTask) SchemaJSON() string { return t.schemaJSON }

func (t *ManifestReadTask) SpecJSON() string { return t.specJSON }

func (t *ManifestReadTask) Residual() expr.ResidualEvaluator { return t.residual }

func (t *ManifestReadTask) SpecsByID() map[int]table.PartitionSpec { return t.specsByID }

// Rows reads the manifest and returns its entries shaped by Schema, keeping
// those that pass the residual. Rows are projected and filtered lazily as
// they are iterated. Column statistics are always populated.
func (t *ManifestReadTask) Rows(ctx context.Context) (iterable.CloseableIterable[types.Row], error) {
	evaluator, err := expr.NewEvaluator(t.schema, t.residual.ResidualFor(nil), t.caseSensitive)
	if err != nil {
		return nil, err
	}

	partitionType := partitionTypeOf(t.schema)
	entries, err := table.ReadManifest(ctx, t.io, t.manifest, partitionType)
	if err != nil {
		return nil, err
	}

	full := table.ManifestEntrySchema(partitionType)
	projector := types.NewProjector(full.AsStruct(), t.schema.AsStruct())

	rows := iterable.Transform[table.ManifestEntry, types.Row](iterable.Of(entries...),
		func(entry table.ManifestEntry) (types.Row, error) {
			return projector.Project(table.EntryRow(entry, partitionType)), nil
		})
	return iterable.Filter(rows, evaluator.Eval), nil
}

// taskFactory builds the tasks of one planning call. The schema and spec
// JSON are serialized once and shared by every task.
type taskFactory struct {
	io            storage.FileIO
	schema        *types.Schema
	schemaJSON    string
	specJSON      string
	residual      expr.ResidualEvaluator
	specsByID     map[int]table.PartitionSpec
	caseSensitive bool
}

func newTaskFactory(tbl *table.Table, schema *types.Schema, filter expr.Expression, caseSensitive bool) (*taskFactory, error) {
	schemaJSON, err := table.SchemaToJSON(schema)
	if err != nil {
		return nil, err
	}
	specJSON, err := table.SpecToJSON(table.Unpartitioned())
	if err != nil {
		return nil, err
	}
	return &taskFactory{
		io:            tbl.IO(),
		schema:        schema,
		schemaJSON:    schemaJSON,
		specJSON:      specJSON,
		residual:      expr.Unpartitioned(filter),
		specsByID:     tbl.SpecsByID(),
		caseSensitive: caseSensitive,
	}, nil
}

func (f *taskFactory) task(mf table.ManifestFile) (scan.FileScanTask, error) {
	return &ManifestReadTask{
		io:            f.io,
		manifest:      mf,
		schema:        f.schema,
		schemaJSON:    f.schemaJSON,
		specJSON:      f.specJSON,
		residual:      f.residual,
		specsByID:     f.specsByID,
		caseSensitive: f.caseSensitive,
	}, nil
}
