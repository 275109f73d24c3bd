package table

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/pkg/types"
)

// DataWriter writes records into Parquet data files, one file per partition
// tuple, and describes them as DataFiles ready to append.
type DataWriter struct {
	io       storage.FileIO
	location string
	schema   *types.Schema
	spec     PartitionSpec
}

// NewDataWriter creates a writer for a table at location.
func NewDataWriter(io storage.FileIO, location string, schema *types.Schema, spec PartitionSpec) *DataWriter {
	return &DataWriter{io: io, location: location, schema: schema, spec: spec}
}

type partitionGroup struct {
	partition map[int]any
	rows      [][]any
}

// Write coerces records to the table schema, groups them by partition and
// writes one Parquet file per group. Records are keyed by top-level column
// name; missing optional columns are null.
func (w *DataWriter) Write(ctx context.Context, records []map[string]any) ([]DataFile, error) {
	fields := w.schema.Fields()
	for _, f := range fields {
		if _, ok := f.Type.(types.PrimitiveType); !ok {
			return nil, fmt.Errorf("table: data writer does not support nested column %s", f.Name)
		}
	}

	groups := make(map[string]*partitionGroup)
	var order []string

	for i, rec := range records {
		row := make([]any, len(fields))
		bySource := make(map[int]any, len(fields))
		for j, f := range fields {
			v, err := types.Coerce(rec[f.Name], f.Type)
			if err != nil {
				return nil, fmt.Errorf("table: record %d column %s: %w", i, f.Name, err)
			}
			if v == nil && f.Required {
				return nil, fmt.Errorf("table: record %d is missing required column %s", i, f.Name)
			}
			row[j] = v
			bySource[f.ID] = v
		}

		partition, err := w.spec.Partition(bySource)
		if err != nil {
			return nil, err
		}
		key := w.partitionPath(partition)
		g, ok := groups[key]
		if !ok {
			g = &partitionGroup{partition: partition}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	files := make([]DataFile, 0, len(order))
	for _, key := range order {
		df, err := w.writeFile(ctx, key, groups[key])
		if err != nil {
			return nil, err
		}
		files = append(files, df)
	}
	return files, nil
}

func (w *DataWriter) partitionPath(partition map[int]any) string {
	parts := make([]string, 0, len(w.spec.Fields))
	for _, pf := range w.spec.Fields {
		v := partition[pf.FieldID]
		s := "null"
		if v != nil {
			s = fmt.Sprint(v)
		}
		parts = append(parts, pf.Name+"="+s)
	}
	return strings.Join(parts, "/")
}

func (w *DataWriter) writeFile(ctx context.Context, partitionPath string, g *partitionGroup) (DataFile, error) {
	schema, err := ParquetSchema(w.schema)
	if err != nil {
		return DataFile{}, err
	}

	fields := w.schema.Fields()
	columns := make([]int, len(fields))
	for j, f := range fields {
		leaf, ok := schema.Lookup(f.Name)
		if !ok {
			return DataFile{}, fmt.Errorf("table: column %s missing from parquet schema", f.Name)
		}
		columns[j] = leaf.ColumnIndex
	}

	rows := make([]parquet.Row, len(g.rows))
	for i, values := range g.rows {
		rows[i] = parquetRow(fields, columns, values)
	}

	var buf bytes.Buffer
	pw := parquet.NewWriter(&buf, schema)
	if _, err := pw.WriteRows(rows); err != nil {
		return DataFile{}, fmt.Errorf("table: failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return DataFile{}, fmt.Errorf("table: failed to close parquet writer: %w", err)
	}

	dir := path.Join(w.location, "data")
	if partitionPath != "" {
		dir = path.Join(dir, partitionPath)
	}
	location := path.Join(dir, uuid.NewString()+".parquet")
	if err := w.io.Write(ctx, location, buf.Bytes()); err != nil {
		return DataFile{}, err
	}

	df := DataFile{
		Content:         FileContentData,
		FilePath:        location,
		FileFormat:      "PARQUET",
		Partition:       g.partition,
		RecordCount:     int64(len(g.rows)),
		FileSizeInBytes: int64(buf.Len()),
		ValueCounts:     make(map[int]int64, len(fields)),
		NullValueCounts: make(map[int]int64, len(fields)),
		LowerBounds:     make(map[int][]byte),
		UpperBounds:     make(map[int][]byte),
	}
	collectStats(&df, fields, g.rows)
	df.ColumnSizes = columnSizes(buf.Bytes(), fields)
	return df, nil
}

// ParquetSchema converts a flat table schema into a Parquet schema.
func ParquetSchema(schema *types.Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)
	for _, f := range schema.Fields() {
		node, err := parquetNode(f.Type)
		if err != nil {
			return nil, fmt.Errorf("table: column %s: %w", f.Name, err)
		}
		if !f.Required {
			node = parquet.Optional(node)
		}
		root[f.Name] = node
	}
	return parquet.NewSchema("table", root), nil
}

func parquetNode(t types.Type) (parquet.Node, error) {
	p, ok := t.(types.PrimitiveType)
	if !ok {
		return nil, fmt.Errorf("unsupported type %s", t)
	}
	switch {
	case p == types.BooleanType:
		return parquet.Leaf(parquet.BooleanType), nil
	case p == types.IntType:
		return parquet.Leaf(parquet.Int32Type), nil
	case p == types.LongType, p == types.TimeType:
		return parquet.Leaf(parquet.Int64Type), nil
	case p == types.FloatType:
		return parquet.Leaf(parquet.FloatType), nil
	case p == types.DoubleType:
		return parquet.Leaf(parquet.DoubleType), nil
	case p == types.DateType:
		return parquet.Date(), nil
	case p == types.TimestampType, p == types.TimestampTzType:
		return parquet.Timestamp(parquet.Microsecond), nil
	case p == types.StringType, p == types.UUIDType, p.IsDecimal():
		return parquet.String(), nil
	case p == types.BinaryType, p.IsFixed():
		return parquet.Leaf(parquet.ByteArrayType), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

// parquetRow builds a row in column order. Optional columns use definition
// level 1 for present values and 0 for nulls.
func parquetRow(fields []types.NestedField, columns []int, values []any) parquet.Row {
	row := make(parquet.Row, len(fields))
	for j, f := range fields {
		col := columns[j]
		v := values[j]
		if v == nil {
			row[col] = parquet.Value{}.Level(0, 0, col)
			continue
		}
		def := 0
		if !f.Required {
			def = 1
		}
		row[col] = parquet.ValueOf(v).Level(0, def, col)
	}
	return row
}

func collectStats(df *DataFile, fields []types.NestedField, rows [][]any) {
	for j, f := range fields {
		var lower, upper any
		for _, row := range rows {
			v := row[j]
			df.ValueCounts[f.ID]++
			if v == nil {
				df.NullValueCounts[f.ID]++
				continue
			}
			if isNaN(v) {
				if df.NaNValueCounts == nil {
					df.NaNValueCounts = make(map[int]int64)
				}
				df.NaNValueCounts[f.ID]++
				continue
			}
			if lower == nil {
				lower, upper = v, v
				continue
			}
			if c, ok := types.Compare(v, lower); ok && c < 0 {
				lower = v
			}
			if c, ok := types.Compare(v, upper); ok && c > 0 {
				upper = v
			}
		}
		if lower != nil {
			if b, ok := boundBytes(lower); ok {
				df.LowerBounds[f.ID] = b
			}
			if b, ok := boundBytes(upper); ok {
				df.UpperBounds[f.ID] = b
			}
		}
	}
}

func isNaN(v any) bool {
	switch x := v.(type) {
	case float32:
		return math.IsNaN(float64(x))
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// boundBytes encodes a bound with the single-value binary serialization:
// little-endian numbers, UTF-8 strings and raw binary.
func boundBytes(v any) ([]byte, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return []byte{1}, true
		}
		return []byte{0}, true
	case int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(x)), true
	case int64:
		return binary.LittleEndian.AppendUint64(nil, uint64(x)), true
	case float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(x)), true
	case float64:
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(x)), true
	case string:
		return []byte(x), true
	case []byte:
		return x, true
	}
	return nil, false
}

// columnSizes reads the written footer and sums compressed chunk sizes per
// top-level column.
func columnSizes(data []byte, fields []types.NestedField) map[int]int64 {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}

	ids := make(map[string]int, len(fields))
	for _, field := range fields {
		ids[field.Name] = field.ID
	}

	sizes := make(map[int]int64, len(fields))
	for _, rg := range f.Metadata().RowGroups {
		for _, chunk := range rg.Columns {
			if len(chunk.MetaData.PathInSchema) == 0 {
				continue
			}
			if id, ok := ids[chunk.MetaData.PathInSchema[0]]; ok {
				sizes[id] += chunk.MetaData.TotalCompressedSize
			}
		}
	}

	if len(sizes) == 0 {
		return nil
	}
	return sizes
}
