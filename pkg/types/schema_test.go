package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryLikeSchema() *Schema {
	return NewSchema(0,
		Required(0, "status", IntType),
		Optional(1, "snapshot_id", LongType),
		Required(2, "data_file", NewStructType(
			Required(100, "file_path", StringType),
			Required(102, "partition", NewStructType(
				Optional(1000, "day", DateType),
			)),
			Required(103, "record_count", LongType),
			Optional(108, "column_sizes", &MapType{KeyID: 117, Key: IntType, ValueID: 118, Value: LongType, ValueRequired: true}),
		)),
	)
}

func TestSelectNot_RemovesNestedField(t *testing.T) {
	schema := entryLikeSchema()

	pruned := SelectNot(schema, 102)

	_, ok := pruned.FindField(102)
	assert.False(t, ok, "partition field should be removed")
	_, ok = pruned.FindField(1000)
	assert.False(t, ok, "children of removed struct should be removed")

	df, ok := pruned.FindFieldByName("data_file", true)
	require.True(t, ok)
	st := df.Type.(*StructType)
	require.Len(t, st.Fields, 3)
	assert.Equal(t, "file_path", st.Fields[0].Name)
	assert.Equal(t, "record_count", st.Fields[1].Name)

	// the source schema is untouched
	_, ok = schema.FindField(102)
	assert.True(t, ok)
}

func TestSelectNot_UnknownIDIsNoop(t *testing.T) {
	schema := entryLikeSchema()
	pruned := SelectNot(schema, 9999)
	assert.Equal(t, schema.LeafNames(), pruned.LeafNames())
}

func TestSelect_NestedAndTopLevel(t *testing.T) {
	schema := entryLikeSchema()

	projected, err := Select(schema, true, "status", "data_file.record_count")
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "data_file.record_count"}, projected.LeafNames())

	_, err = Select(schema, true, "DATA_FILE.record_count")
	assert.ErrorIs(t, err, ErrFieldNotFound)

	projected, err = Select(schema, false, "DATA_FILE.record_count")
	require.NoError(t, err)
	assert.Equal(t, []string{"data_file.record_count"}, projected.LeafNames())
}

func TestAccessor_Get(t *testing.T) {
	schema := entryLikeSchema()
	row := Row{int32(1), int64(7), Row{"s3://bucket/a.parquet", Row{int32(19000)}, int64(42), nil}}

	acc, ok := schema.Accessor("data_file.partition.day", true)
	require.True(t, ok)
	assert.Equal(t, int32(19000), acc.Get(row))

	acc, ok = schema.Accessor("data_file.record_count", true)
	require.True(t, ok)
	assert.Equal(t, int64(42), acc.Get(row))
	assert.Equal(t, LongType, acc.Field.Type)

	// null enclosing struct reads as null
	assert.Nil(t, acc.Get(Row{int32(1), nil, nil}))

	_, ok = schema.Accessor("status.nested", true)
	assert.False(t, ok)
}

func TestProjector_DropsField(t *testing.T) {
	schema := entryLikeSchema()
	pruned := SelectNot(schema, 102)

	row := Row{int32(1), int64(7), Row{"a.parquet", Row{int32(3)}, int64(42), nil}}
	out := NewProjector(schema.AsStruct(), pruned.AsStruct()).Project(row)

	assert.Equal(t, Row{int32(1), int64(7), Row{"a.parquet", int64(42), nil}}, out)
}

func TestSchemaJSON_RoundTrip(t *testing.T) {
	schema := entryLikeSchema()
	schema.SchemaID = 3

	data, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded Schema
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.SchemaID)
	assert.Equal(t, schema.AsStruct().String(), decoded.AsStruct().String())

	m, ok := decoded.FindField(108)
	require.True(t, ok)
	mt := m.Type.(*MapType)
	assert.Equal(t, 117, mt.KeyID)
	assert.Equal(t, 118, mt.ValueID)
}

func TestParsePrimitive(t *testing.T) {
	tests := []struct {
		in   string
		want PrimitiveType
	}{
		{"long", LongType},
		{"fixed[16]", FixedType(16)},
		{"decimal(9,2)", DecimalType(9, 2)},
		{"decimal(9, 2)", DecimalType(9, 2)},
	}
	for _, tt := range tests {
		got, err := ParsePrimitive(tt.in)
		if err != nil {
			t.Fatalf("ParsePrimitive(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePrimitive(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParsePrimitive("varchar"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestHighestFieldID(t *testing.T) {
	assert.Equal(t, 1000, entryLikeSchema().HighestFieldID())
}
