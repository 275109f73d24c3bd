package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/metatables/internal/expr"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

func TestContext_WithReturnsCopies(t *testing.T) {
	base := NewContext()

	refined := base.
		WithRowFilter(expr.Equal("status", 1)).
		WithIgnoreResiduals().
		WithCaseSensitive(false).
		WithColStats().
		WithSnapshotID(42).
		WithSelectedColumns("status")

	assert.Equal(t, expr.OpTrue, base.RowFilter().Op())
	assert.False(t, base.IgnoreResiduals())
	assert.True(t, base.CaseSensitive())
	assert.False(t, base.ColStats())
	_, ok := base.SnapshotID()
	assert.False(t, ok)
	assert.Empty(t, base.SelectedColumns())

	assert.Equal(t, expr.OpEq, refined.RowFilter().Op())
	assert.True(t, refined.IgnoreResiduals())
	assert.False(t, refined.CaseSensitive())
	assert.True(t, refined.ColStats())
	id, ok := refined.SnapshotID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, []string{"status"}, refined.SelectedColumns())
}

func TestContext_FiltersAreConjoined(t *testing.T) {
	c := NewContext().WithRowFilter(expr.Equal("a", 1)).WithRowFilter(expr.Equal("b", 2))
	assert.Equal(t, expr.OpAnd, c.RowFilter().Op())
}

func TestContext_SiblingsDoNotShareColumns(t *testing.T) {
	columns := []string{"status", "snapshot_id"}
	parent := NewContext().WithSelectedColumns(columns...)
	columns[0] = "data_file"
	left := parent.WithSelectedColumns("status")
	right := parent.WithRowFilter(expr.Equal("status", 1))

	assert.Equal(t, []string{"status", "snapshot_id"}, parent.SelectedColumns())
	assert.Equal(t, []string{"status"}, left.SelectedColumns())
	assert.Equal(t, []string{"status", "snapshot_id"}, right.SelectedColumns())
	assert.Equal(t, expr.OpTrue, parent.RowFilter().Op())

	got := right.SelectedColumns()
	got[0] = "mutated"
	assert.Equal(t, "status", right.SelectedColumns()[0])
}

func TestBase_ProjectionAndEffectiveFilter(t *testing.T) {
	io, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	schema := types.NewSchema(0,
		types.Required(1, "id", types.LongType),
		types.Optional(2, "name", types.StringType),
	)
	meta, err := table.NewTableMetadata("t", schema, table.Unpartitioned(), nil)
	require.NoError(t, err)
	tbl := table.New("t", table.NewMemoryOperations(io, "t", meta))

	b := NewBase(tbl, schema, NewContext().WithSelectedColumns("NAME").WithCaseSensitive(false))
	projected, err := b.Projection()
	require.NoError(t, err)
	require.Len(t, projected.Fields(), 1)
	assert.Equal(t, "name", projected.Fields()[0].Name)

	_, err = NewBase(tbl, schema, NewContext().WithSelectedColumns("nope")).Projection()
	assert.Error(t, err)

	filtered := NewBase(tbl, schema, NewContext().WithRowFilter(expr.Equal("id", 1)))
	assert.Equal(t, expr.OpEq, filtered.EffectiveFilter().Op())
	ignored := NewBase(tbl, schema, filtered.Context().WithIgnoreResiduals())
	assert.Equal(t, expr.OpTrue, ignored.EffectiveFilter().Op())
}
