package types

// Row is a positional struct value. Nested structs are nested Rows, lists are []any
// and maps are map[any]any; absent values are nil.
type Row []any

// Projector copies values from rows of one struct type into rows of another struct
// type whose fields are a subset of the source, matched by field id.
type Projector struct {
	positions []int
	nested    []*Projector
}

// NewProjector builds a projector from source to target. Target fields that do not
// exist in source project as nil.
func NewProjector(source, target *StructType) *Projector {
	p := &Projector{
		positions: make([]int, len(target.Fields)),
		nested:    make([]*Projector, len(target.Fields)),
	}
	for i, tf := range target.Fields {
		p.positions[i] = -1
		for j, sf := range source.Fields {
			if sf.ID != tf.ID {
				continue
			}
			p.positions[i] = j
			srcStruct, ok1 := sf.Type.(*StructType)
			dstStruct, ok2 := tf.Type.(*StructType)
			if ok1 && ok2 {
				p.nested[i] = NewProjector(srcStruct, dstStruct)
			}
			break
		}
	}
	return p
}

// Project returns a new row shaped like the target struct.
func (p *Projector) Project(row Row) Row {
	if row == nil {
		return nil
	}
	out := make(Row, len(p.positions))
	for i, pos := range p.positions {
		if pos < 0 || pos >= len(row) {
			continue
		}
		if p.nested[i] != nil {
			if inner, ok := row[pos].(Row); ok {
				out[i] = p.nested[i].Project(inner)
			}
			continue
		}
		out[i] = row[pos]
	}
	return out
}

// Flatten returns the row's leaf values keyed by dotted name, following the order
// of schema.LeafNames().
func Flatten(schema *Schema, row Row) map[string]any {
	out := make(map[string]any)
	var visit func(prefix string, fields []NestedField, r Row)
	visit = func(prefix string, fields []NestedField, r Row) {
		for i, f := range fields {
			var v any
			if i < len(r) {
				v = r[i]
			}
			name := prefix + f.Name
			if st, ok := f.Type.(*StructType); ok {
				inner, _ := v.(Row)
				visit(name+".", st.Fields, inner)
				continue
			}
			out[name] = v
		}
	}
	visit("", schema.Fields(), row)
	return out
}
