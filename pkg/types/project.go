package types

import (
	"fmt"
	"strings"
)

// SelectNot returns a copy of the schema without the fields whose ids are given.
// Fields are removed at any nesting depth; a removed struct takes its children with it.
func SelectNot(schema *Schema, ids ...int) *Schema {
	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	return &Schema{
		SchemaID:           schema.SchemaID,
		IdentifierFieldIDs: keepIDs(schema.IdentifierFieldIDs, drop),
		fields:             dropFields(schema.fields, drop),
	}
}

func dropFields(fields []NestedField, drop map[int]struct{}) []NestedField {
	out := make([]NestedField, 0, len(fields))
	for _, f := range fields {
		if _, ok := drop[f.ID]; ok {
			continue
		}
		f.Type = dropType(f.Type, drop)
		out = append(out, f)
	}
	return out
}

func dropType(t Type, drop map[int]struct{}) Type {
	switch tt := t.(type) {
	case *StructType:
		return &StructType{Fields: dropFields(tt.Fields, drop)}
	case *ListType:
		cp := *tt
		cp.Element = dropType(tt.Element, drop)
		return &cp
	case *MapType:
		cp := *tt
		cp.Key = dropType(tt.Key, drop)
		cp.Value = dropType(tt.Value, drop)
		return &cp
	default:
		return t
	}
}

func keepIDs(ids []int, drop map[int]struct{}) []int {
	var out []int
	for _, id := range ids {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Select projects the schema onto the named columns. Names may be dotted to select
// a nested field; selecting a struct keeps all of its children. Field order follows
// the source schema.
func Select(schema *Schema, caseSensitive bool, names ...string) (*Schema, error) {
	selected := make(map[int]struct{}, len(names))
	for _, name := range names {
		acc, ok := schema.Accessor(name, caseSensitive)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
		}
		selected[acc.Field.ID] = struct{}{}
	}
	return &Schema{
		SchemaID: schema.SchemaID,
		fields:   selectFields(schema.fields, selected),
	}, nil
}

func selectFields(fields []NestedField, selected map[int]struct{}) []NestedField {
	var out []NestedField
	for _, f := range fields {
		if _, ok := selected[f.ID]; ok {
			out = append(out, f)
			continue
		}
		if st, ok := f.Type.(*StructType); ok {
			if children := selectFields(st.Fields, selected); len(children) > 0 {
				f.Type = &StructType{Fields: children}
				out = append(out, f)
			}
		}
	}
	return out
}

// Accessor reads one possibly nested field out of a Row.
type Accessor struct {
	// Positions is the path of struct positions from the top-level row
	Positions []int

	// Field is the field being accessed
	Field NestedField
}

// Get returns the accessed value, or nil if any enclosing struct is null.
func (a Accessor) Get(row Row) any {
	var cur any = row
	for _, pos := range a.Positions {
		r, ok := cur.(Row)
		if !ok || pos >= len(r) {
			return nil
		}
		cur = r[pos]
	}
	return cur
}

// Accessor resolves a dotted name into positions within rows of this schema.
func (s *Schema) Accessor(name string, caseSensitive bool) (Accessor, bool) {
	parts := strings.Split(name, ".")
	st := s.AsStruct()
	acc := Accessor{Positions: make([]int, 0, len(parts))}
	for i, part := range parts {
		pos, f, ok := st.FieldByName(part, caseSensitive)
		if !ok {
			return Accessor{}, false
		}
		acc.Positions = append(acc.Positions, pos)
		acc.Field = f
		if i == len(parts)-1 {
			break
		}
		next, ok := f.Type.(*StructType)
		if !ok {
			return Accessor{}, false
		}
		st = next
	}
	return acc, true
}
