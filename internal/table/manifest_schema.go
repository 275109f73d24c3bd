package table

import "github.com/arkilian/metatables/pkg/types"

// PartitionFieldID is the id of the data_file.partition struct in the
// manifest-entry schema.
const PartitionFieldID = 102

// DataFileType returns the struct type of a data_file with the given
// partition type embedded as field 102.
func DataFileType(partitionType *types.StructType) *types.StructType {
	return types.NewStructType(
		types.Required(134, "content", types.IntType).WithDoc("Contents of the file: 0=data, 1=position deletes, 2=equality deletes"),
		types.Required(100, "file_path", types.StringType).WithDoc("Location URI with FS scheme"),
		types.Required(101, "file_format", types.StringType).WithDoc("File format name: avro, orc, or parquet"),
		types.Required(PartitionFieldID, "partition", partitionType).WithDoc("Partition data tuple, schema based on the partition spec"),
		types.Required(103, "record_count", types.LongType).WithDoc("Number of records in the file"),
		types.Required(104, "file_size_in_bytes", types.LongType).WithDoc("Total file size in bytes"),
		types.Optional(108, "column_sizes", &types.MapType{
			KeyID: 117, Key: types.IntType, ValueID: 118, Value: types.LongType, ValueRequired: true,
		}).WithDoc("Map of column id to total size on disk"),
		types.Optional(109, "value_counts", &types.MapType{
			KeyID: 119, Key: types.IntType, ValueID: 120, Value: types.LongType, ValueRequired: true,
		}).WithDoc("Map of column id to total count, including null and NaN"),
		types.Optional(110, "null_value_counts", &types.MapType{
			KeyID: 121, Key: types.IntType, ValueID: 122, Value: types.LongType, ValueRequired: true,
		}).WithDoc("Map of column id to null value count"),
		types.Optional(137, "nan_value_counts", &types.MapType{
			KeyID: 138, Key: types.IntType, ValueID: 139, Value: types.LongType, ValueRequired: true,
		}).WithDoc("Map of column id to number of NaN values in the column"),
		types.Optional(125, "lower_bounds", &types.MapType{
			KeyID: 126, Key: types.IntType, ValueID: 127, Value: types.BinaryType, ValueRequired: true,
		}).WithDoc("Map of column id to lower bound"),
		types.Optional(128, "upper_bounds", &types.MapType{
			KeyID: 129, Key: types.IntType, ValueID: 130, Value: types.BinaryType, ValueRequired: true,
		}).WithDoc("Map of column id to upper bound"),
		types.Optional(131, "key_metadata", types.BinaryType).WithDoc("Encryption key metadata blob"),
		types.Optional(132, "split_offsets", &types.ListType{
			ElementID: 133, Element: types.LongType, ElementRequired: true,
		}).WithDoc("Splittable offsets"),
		types.Optional(135, "equality_ids", &types.ListType{
			ElementID: 136, Element: types.IntType, ElementRequired: true,
		}).WithDoc("Equality comparison field IDs"),
		types.Optional(140, "sort_order_id", types.IntType).WithDoc("Sort order ID"),
	)
}

// ManifestEntrySchema returns the row schema of manifest entries whose
// data_file.partition has the given type.
func ManifestEntrySchema(partitionType *types.StructType) *types.Schema {
	return types.NewSchema(0,
		types.Required(0, "status", types.IntType),
		types.Optional(1, "snapshot_id", types.LongType),
		types.Optional(3, "sequence_number", types.LongType),
		types.Optional(4, "file_sequence_number", types.LongType),
		types.Required(2, "data_file", DataFileType(partitionType)),
	)
}

// EntryRow converts an entry into a row of ManifestEntrySchema(partitionType).
// Partition values are placed by partition field id; fields the entry's spec
// does not define are null.
func EntryRow(entry ManifestEntry, partitionType *types.StructType) types.Row {
	df := entry.DataFile

	partition := make(types.Row, len(partitionType.Fields))
	for i, f := range partitionType.Fields {
		partition[i] = df.Partition[f.ID]
	}

	dataFile := types.Row{
		int32(df.Content),
		df.FilePath,
		df.FileFormat,
		partition,
		df.RecordCount,
		df.FileSizeInBytes,
		countMap(df.ColumnSizes),
		countMap(df.ValueCounts),
		countMap(df.NullValueCounts),
		countMap(df.NaNValueCounts),
		boundMap(df.LowerBounds),
		boundMap(df.UpperBounds),
		nilIfEmpty(df.KeyMetadata),
		longList(df.SplitOffsets),
		intList(df.EqualityIDs),
		optionalInt(df.SortOrderID),
	}

	return types.Row{
		int32(entry.Status),
		optionalLong(entry.SnapshotID),
		optionalLong(entry.SequenceNumber),
		optionalLong(entry.FileSequenceNumber),
		dataFile,
	}
}

func countMap(m map[int]int64) any {
	if m == nil {
		return nil
	}
	out := make(map[any]any, len(m))
	for k, v := range m {
		out[int32(k)] = v
	}
	return out
}

func boundMap(m map[int][]byte) any {
	if m == nil {
		return nil
	}
	out := make(map[any]any, len(m))
	for k, v := range m {
		out[int32(k)] = v
	}
	return out
}

func longList(l []int64) any {
	if l == nil {
		return nil
	}
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = v
	}
	return out
}

func intList(l []int) any {
	if l == nil {
		return nil
	}
	out := make([]any, len(l))
	for i, v := range l {
		out[i] = int32(v)
	}
	return out
}

func optionalLong(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return int32(*v)
}

func nilIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

