package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/pkg/types"
)

func entrySchema() *types.Schema {
	return types.NewSchema(0,
		types.Required(0, "status", types.IntType),
		types.Optional(1, "snapshot_id", types.LongType),
		types.Required(2, "data_file", types.NewStructType(
			types.Required(100, "file_path", types.StringType),
			types.Required(103, "record_count", types.LongType),
			types.Optional(140, "sort_order_id", types.IntType),
		)),
	)
}

func row(status int32, snapshotID any, path string, records int64) types.Row {
	return types.Row{status, snapshotID, types.Row{path, records, nil}}
}

func TestConstructorsSimplify(t *testing.T) {
	p := Equal("status", 1)

	assert.Equal(t, OpFalse, NewAnd(p, AlwaysFalse()).Op())
	assert.Same(t, p, NewAnd(AlwaysTrue(), p))
	assert.Equal(t, OpTrue, NewOr(p, AlwaysTrue()).Op())
	assert.Same(t, p, NewOr(AlwaysFalse(), p))
	assert.Equal(t, OpFalse, NewNot(AlwaysTrue()).Op())
	assert.Same(t, p, NewNot(NewNot(p)))

	assert.Equal(t, OpFalse, In("status").Op())
	assert.Equal(t, OpEq, In("status", 1).Op())
	assert.Equal(t, OpIn, In("status", 1, 2).Op())
	assert.Equal(t, OpNotEq, NotIn("status", 1).Op())
}

func TestNegate(t *testing.T) {
	e := NewAnd(LessThan("status", 1), IsNull("snapshot_id"))
	neg := e.Negate()

	or, ok := neg.(*Or)
	require.True(t, ok)
	assert.Equal(t, OpGtEq, or.Left.Op())
	assert.Equal(t, OpNotNull, or.Right.Op())
}

func TestBind(t *testing.T) {
	schema := entrySchema()

	bound, err := Bind(schema, Equal("data_file.record_count", 10), true)
	require.NoError(t, err)
	bp := bound.(*BoundPredicate)
	assert.Equal(t, int64(10), bp.Literals[0])
	assert.Equal(t, 103, bp.Field.ID)

	bound, err = Bind(schema, IsNull("status"), true)
	require.NoError(t, err)
	assert.Equal(t, OpFalse, bound.Op(), "required field is never null")

	_, err = Bind(schema, Equal("STATUS", 1), true)
	require.Error(t, err)
	assert.Equal(t, metaerrors.ErrCategoryExpression, metaerrors.GetCategory(err))
	assert.Equal(t, metaerrors.CodeUnknownField, metaerrors.GetCode(err))

	bound, err = Bind(schema, Equal("STATUS", 1), false)
	require.NoError(t, err)
	assert.True(t, IsBound(bound))

	_, err = Bind(schema, Equal("status", "abc"), true)
	assert.Equal(t, metaerrors.CodeInvalidValue, metaerrors.GetCode(err))

	_, err = Bind(schema, Equal("data_file", 1), true)
	assert.Error(t, err)

	_, err = Bind(schema, StartsWith("status", "1"), true)
	assert.Error(t, err)
}

func TestEvaluator(t *testing.T) {
	schema := entrySchema()
	added := row(1, int64(7), "s3://b/data/a.parquet", 100)
	orphan := row(0, nil, "s3://b/data/b.parquet", 5)

	tests := []struct {
		name   string
		filter Expression
		added  bool
		orphan bool
	}{
		{"true", AlwaysTrue(), true, true},
		{"eq", Equal("status", 1), true, false},
		{"not_eq", NotEqual("status", 1), false, true},
		{"lt nested", LessThan("data_file.record_count", 50), false, true},
		{"gt_eq", GreaterThanOrEqual("data_file.record_count", 100), true, false},
		{"lt_eq", LessThanOrEqual("data_file.record_count", 5), false, true},
		{"gt", GreaterThan("status", 0), true, false},
		{"in", In("status", 1, 2), true, false},
		{"not_in", NotIn("status", 1, 2), false, true},
		{"is_null", IsNull("snapshot_id"), false, true},
		{"not_null", NotNull("snapshot_id"), true, false},
		{"null fails comparison", Equal("snapshot_id", 7), true, false},
		{"null passes not_eq", NotEqual("snapshot_id", 7), false, true},
		{"starts_with", StartsWith("data_file.file_path", "s3://b/data/a"), true, false},
		{"not_starts_with", NotStartsWith("data_file.file_path", "s3://b/data/a"), false, true},
		{"and", NewAnd(Equal("status", 1), GreaterThan("data_file.record_count", 10)), true, false},
		{"or", NewOr(Equal("status", 0), GreaterThan("data_file.record_count", 10)), true, true},
		{"not", NewNot(Equal("status", 1)), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewEvaluator(schema, tt.filter, true)
			require.NoError(t, err)
			assert.Equal(t, tt.added, ev.Eval(added), "added row")
			assert.Equal(t, tt.orphan, ev.Eval(orphan), "orphan row")
		})
	}
}

func TestEvaluator_NaN(t *testing.T) {
	schema := types.NewSchema(0, types.Optional(1, "x", types.DoubleType))
	ev, err := NewEvaluator(schema, GreaterThan("x", 0), true)
	require.NoError(t, err)
	assert.False(t, ev.Eval(types.Row{math.NaN()}))
	assert.True(t, ev.Eval(types.Row{1.5}))
}

func TestUnpartitionedResidual(t *testing.T) {
	filter := Equal("status", 1)
	res := Unpartitioned(filter)
	assert.Same(t, filter, res.Filter())
	assert.Same(t, filter, res.ResidualFor(types.Row{"anything"}))
	assert.Same(t, filter, res.ResidualFor(nil))

	assert.Equal(t, OpTrue, Unpartitioned(nil).Filter().Op())
}

func TestString(t *testing.T) {
	e := NewAnd(Equal("status", 1), In("data_file.file_path", "a", "b"))
	assert.Equal(t, `(status == 1 and data_file.file_path in ("a", "b"))`, e.String())
	assert.Equal(t, "not(is_null(snapshot_id))", NewNot(IsNull("snapshot_id")).String())
}
