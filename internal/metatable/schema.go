package metatable

import (
	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// ResolveSchema returns the entries row schema for a unified partition type.
// Without partition fields, data_file.partition is dropped: an empty struct
// is not a valid column for several readers.
func ResolveSchema(partitionType *types.StructType) *types.Schema {
	schema := table.ManifestEntrySchema(partitionType)
	if len(partitionType.Fields) < 1 {
		return types.SelectNot(schema, table.PartitionFieldID)
	}
	return schema
}

// entriesSchema resolves the schema from the table's current metadata. The
// partition type is recomputed on every call.
func entriesSchema(tbl *table.Table) (*types.Schema, error) {
	partitionType, err := table.PartitionType(tbl.Metadata())
	if err != nil {
		return nil, metaerrors.NewMetadataError(metaerrors.CodeCorruptMetadata,
			"cannot compute partition type of "+tbl.Name(), err)
	}
	return ResolveSchema(partitionType), nil
}

// partitionTypeOf returns the type of data_file.partition in an entries
// schema, or an empty struct when the schema has none.
func partitionTypeOf(schema *types.Schema) *types.StructType {
	if f, ok := schema.FindField(table.PartitionFieldID); ok {
		if st, ok := f.Type.(*types.StructType); ok {
			return st
		}
	}
	return types.NewStructType()
}
