package table

import (
	"context"

	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/pkg/types"
)

// Table is a named handle over a table's operations.
type Table struct {
	name string
	ops  Operations
}

// New returns a table handle.
func New(name string, ops Operations) *Table {
	return &Table{name: name, ops: ops}
}

func (t *Table) Name() string { return t.name }

func (t *Table) Operations() Operations { return t.ops }

// Metadata returns the current metadata.
func (t *Table) Metadata() *TableMetadata { return t.ops.Current() }

func (t *Table) IO() storage.FileIO { return t.ops.IO() }

func (t *Table) Location() string { return t.Metadata().Location }

func (t *Table) Schema() *types.Schema { return t.Metadata().CurrentSchema() }

func (t *Table) Spec() PartitionSpec { return t.Metadata().Spec() }

func (t *Table) SpecsByID() map[int]PartitionSpec { return t.Metadata().SpecsByID() }

// Snapshots returns every snapshot in the table's history.
func (t *Table) Snapshots() []*Snapshot { return t.Metadata().Snapshots }

func (t *Table) CurrentSnapshot() *Snapshot { return t.Metadata().CurrentSnapshot() }

// Refresh reloads metadata from the catalog.
func (t *Table) Refresh(ctx context.Context) error {
	_, err := t.ops.Refresh(ctx)
	return err
}

// NewAppend starts a snapshot that adds data files.
func (t *Table) NewAppend() *SnapshotProducer {
	return newSnapshotProducer(t.ops, OperationAppend)
}

// NewDelete starts a snapshot that removes data files by path.
func (t *Table) NewDelete() *SnapshotProducer {
	return newSnapshotProducer(t.ops, OperationDelete)
}

// UpdateSpec commits a new default partition spec.
func (t *Table) UpdateSpec(ctx context.Context, spec PartitionSpec) error {
	base := t.ops.Current()
	next, err := base.WithPartitionSpec(spec)
	if err != nil {
		return err
	}
	return t.ops.Commit(ctx, base, next)
}

// NewDataWriter returns a writer that lays out rows using the current schema
// and default spec.
func (t *Table) NewDataWriter() *DataWriter {
	meta := t.Metadata()
	return NewDataWriter(t.IO(), meta.Location, meta.CurrentSchema(), meta.Spec())
}
