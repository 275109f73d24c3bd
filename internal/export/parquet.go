// Package export writes materialized metadata-table rows to Parquet.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// column is one flattened leaf of the exported schema.
type column struct {
	name     string
	typ      types.Type
	encoded  bool // map or list leaf written as a JSON string
	required bool
	index    int
}

// WriteParquet writes rows shaped by schema to w as a single Parquet file and
// returns the number of rows written. Nested structs are flattened into
// dotted column names; map and list leaves are written as JSON strings.
func WriteParquet(w io.Writer, schema *types.Schema, rows []types.Row) (int, error) {
	columns := flattenColumns(schema)
	if len(columns) == 0 {
		return 0, fmt.Errorf("export: schema has no columns")
	}

	flat := make([]types.NestedField, len(columns))
	for i, c := range columns {
		typ := c.typ
		if c.encoded {
			typ = types.StringType
		}
		flat[i] = types.NestedField{ID: i + 1, Name: c.name, Type: typ, Required: c.required}
	}
	pschema, err := table.ParquetSchema(types.NewSchema(0, flat...))
	if err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	for i := range columns {
		leaf, ok := pschema.Lookup(columns[i].name)
		if !ok {
			return 0, fmt.Errorf("export: column %s missing from parquet schema", columns[i].name)
		}
		columns[i].index = leaf.ColumnIndex
	}

	out := make([]parquet.Row, 0, len(rows))
	for i, row := range rows {
		pr, err := parquetRow(columns, types.Flatten(schema, row))
		if err != nil {
			return 0, fmt.Errorf("export: row %d: %w", i, err)
		}
		out = append(out, pr)
	}

	pw := parquet.NewWriter(w, pschema)
	if _, err := pw.WriteRows(out); err != nil {
		return 0, fmt.Errorf("export: failed to write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return 0, fmt.Errorf("export: failed to close parquet writer: %w", err)
	}
	return len(out), nil
}

// flattenColumns lists the leaves of schema in field order. A leaf is
// required only if every struct on its path is required.
func flattenColumns(schema *types.Schema) []column {
	var out []column
	var visit func(prefix string, fields []types.NestedField, required bool)
	visit = func(prefix string, fields []types.NestedField, required bool) {
		for _, f := range fields {
			name := prefix + f.Name
			req := required && f.Required
			switch t := f.Type.(type) {
			case *types.StructType:
				visit(name+".", t.Fields, req)
			case *types.MapType, *types.ListType:
				out = append(out, column{name: name, typ: t, encoded: true, required: req})
			default:
				out = append(out, column{name: name, typ: t, required: req})
			}
		}
	}
	visit("", schema.Fields(), true)
	return out
}

func parquetRow(columns []column, values map[string]any) (parquet.Row, error) {
	row := make(parquet.Row, len(columns))
	for _, c := range columns {
		v := values[c.name]
		if v == nil {
			if c.required {
				return nil, fmt.Errorf("required column %s is null", c.name)
			}
			row[c.index] = parquet.Value{}.Level(0, 0, c.index)
			continue
		}
		v, err := leafValue(c, v)
		if err != nil {
			return nil, err
		}
		def := 0
		if !c.required {
			def = 1
		}
		row[c.index] = parquet.ValueOf(v).Level(0, def, c.index)
	}
	return row, nil
}

func leafValue(c column, v any) (any, error) {
	if c.encoded {
		b, err := json.Marshal(JSONValue(v))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.name, err)
		}
		return string(b), nil
	}
	if p, ok := c.typ.(types.PrimitiveType); ok && (p.IsDecimal() || p == types.UUIDType) {
		if _, isString := v.(string); !isString {
			return fmt.Sprint(v), nil
		}
	}
	return v, nil
}
