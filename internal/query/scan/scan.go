package scan

import (
	"context"
	"fmt"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/expr"
	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// TableScan plans the work needed to read a table. Scans are immutable:
// every refinement returns a new scan and the receiver keeps its
// configuration.
type TableScan interface {
	// TableType names the kind of table scanned, for diagnostics.
	TableType() string

	// Table returns the table being scanned.
	Table() *table.Table

	// Schema returns the row schema of the scanned table.
	Schema() *types.Schema

	// Projection returns Schema restricted to the selected columns.
	Projection() (*types.Schema, error)

	// Context returns the scan configuration.
	Context() Context

	Filter(e expr.Expression) TableScan
	IgnoreResiduals() TableScan
	CaseSensitive(caseSensitive bool) TableScan
	IncludeColumnStats() TableScan
	UseSnapshot(snapshotID int64) TableScan
	Select(columns ...string) TableScan
	PlanWith(pool iterable.Pool) TableScan

	// PlanFiles returns the tasks to execute. Planning failures are returned
	// before any task is produced.
	PlanFiles(ctx context.Context) (iterable.CloseableIterable[FileScanTask], error)
}

// FileScanTask is one self-contained unit of scan work.
type FileScanTask interface {
	// IO returns the file I/O used to read the task's files.
	IO() storage.FileIO

	// Manifest returns the manifest this task reads.
	Manifest() table.ManifestFile

	// Schema returns the row schema of the task's rows.
	Schema() *types.Schema

	// SchemaJSON returns Schema in its JSON form.
	SchemaJSON() string

	// SpecJSON returns the JSON form of the partition spec rows are read with.
	SpecJSON() string

	// Residual returns the filter evaluator rows must still pass.
	Residual() expr.ResidualEvaluator

	// SpecsByID returns the table's partition specs as of planning.
	SpecsByID() map[int]table.PartitionSpec

	// Rows reads the task's rows, shaped by Schema, that pass the residual.
	Rows(ctx context.Context) (iterable.CloseableIterable[types.Row], error)
}

// Base carries the state every scan has. Concrete scans embed it and
// implement refinement by constructing a new scan from a new Context.
type Base struct {
	tbl    *table.Table
	schema *types.Schema
	ctx    Context
}

// NewBase creates scan state for a table whose rows have schema.
func NewBase(tbl *table.Table, schema *types.Schema, ctx Context) Base {
	return Base{tbl: tbl, schema: schema, ctx: ctx}
}

func (b Base) Table() *table.Table { return b.tbl }

func (b Base) Schema() *types.Schema { return b.schema }

func (b Base) Context() Context { return b.ctx }

func (b Base) Projection() (*types.Schema, error) {
	columns := b.ctx.SelectedColumns()
	if len(columns) == 0 {
		return b.schema, nil
	}
	projected, err := types.Select(b.schema, b.ctx.CaseSensitive(), columns...)
	if err != nil {
		return nil, metaerrors.NewExpressionError(metaerrors.CodeUnknownField,
			fmt.Sprintf("cannot select columns: %v", err))
	}
	return projected, nil
}

// EffectiveFilter returns the filter tasks apply to rows: always true when
// residuals are ignored, otherwise the configured row filter.
func (b Base) EffectiveFilter() expr.Expression {
	if b.ctx.IgnoreResiduals() {
		return expr.AlwaysTrue()
	}
	return b.ctx.RowFilter()
}
