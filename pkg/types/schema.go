// Package types provides the schema type system shared by tables and metadata tables.
package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Type is a field type: a PrimitiveType, *StructType, *ListType or *MapType.
type Type interface {
	String() string
	isType()
}

// PrimitiveType is a leaf type identified by its canonical name.
type PrimitiveType string

const (
	BooleanType     PrimitiveType = "boolean"
	IntType         PrimitiveType = "int"
	LongType        PrimitiveType = "long"
	FloatType       PrimitiveType = "float"
	DoubleType      PrimitiveType = "double"
	DateType        PrimitiveType = "date"
	TimeType        PrimitiveType = "time"
	TimestampType   PrimitiveType = "timestamp"
	TimestampTzType PrimitiveType = "timestamptz"
	StringType      PrimitiveType = "string"
	UUIDType        PrimitiveType = "uuid"
	BinaryType      PrimitiveType = "binary"
)

var (
	fixedPattern   = regexp.MustCompile(`^fixed\[(\d+)\]$`)
	decimalPattern = regexp.MustCompile(`^decimal\((\d+),\s*(\d+)\)$`)
)

// FixedType returns the fixed-length binary type of the given length.
func FixedType(length int) PrimitiveType {
	return PrimitiveType(fmt.Sprintf("fixed[%d]", length))
}

// DecimalType returns the decimal type with the given precision and scale.
func DecimalType(precision, scale int) PrimitiveType {
	return PrimitiveType(fmt.Sprintf("decimal(%d, %d)", precision, scale))
}

// ParsePrimitive parses a primitive type name as it appears in schema JSON.
func ParsePrimitive(name string) (PrimitiveType, error) {
	switch p := PrimitiveType(strings.ToLower(strings.TrimSpace(name))); p {
	case BooleanType, IntType, LongType, FloatType, DoubleType, DateType, TimeType,
		TimestampType, TimestampTzType, StringType, UUIDType, BinaryType:
		return p, nil
	}
	if m := fixedPattern.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return FixedType(n), nil
	}
	if m := decimalPattern.FindStringSubmatch(name); m != nil {
		p, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		return DecimalType(p, s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
}

func (p PrimitiveType) String() string { return string(p) }
func (PrimitiveType) isType()          {}

// IsFixed reports whether p is a fixed[L] type.
func (p PrimitiveType) IsFixed() bool { return fixedPattern.MatchString(string(p)) }

// IsDecimal reports whether p is a decimal(P,S) type.
func (p PrimitiveType) IsDecimal() bool { return decimalPattern.MatchString(string(p)) }

// NestedField is a named, typed field with a stable id.
type NestedField struct {
	// ID is unique across the whole schema and never reused
	ID int

	// Name is the field name within its parent struct
	Name string

	// Type is the field type
	Type Type

	// Required indicates that the field may not be null
	Required bool

	// Doc is an optional description
	Doc string
}

// Required returns a required field.
func Required(id int, name string, typ Type) NestedField {
	return NestedField{ID: id, Name: name, Type: typ, Required: true}
}

// Optional returns an optional field.
func Optional(id int, name string, typ Type) NestedField {
	return NestedField{ID: id, Name: name, Type: typ}
}

// WithDoc returns a copy of the field with the given doc string.
func (f NestedField) WithDoc(doc string) NestedField {
	f.Doc = doc
	return f
}

func (f NestedField) String() string {
	req := "optional"
	if f.Required {
		req = "required"
	}
	return fmt.Sprintf("%d: %s: %s %s", f.ID, f.Name, req, f.Type)
}

// StructType is an ordered list of fields.
type StructType struct {
	Fields []NestedField
}

// NewStructType returns a struct type holding the given fields.
func NewStructType(fields ...NestedField) *StructType {
	return &StructType{Fields: fields}
}

func (*StructType) isType() {}

func (s *StructType) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ": " + f.Type.String()
	}
	return "struct<" + strings.Join(parts, ", ") + ">"
}

// Field returns the direct child with the given id.
func (s *StructType) Field(id int) (NestedField, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return NestedField{}, false
}

// FieldByName returns the position and field of the direct child with the given name.
func (s *StructType) FieldByName(name string, caseSensitive bool) (int, NestedField, bool) {
	for i, f := range s.Fields {
		if f.Name == name || (!caseSensitive && strings.EqualFold(f.Name, name)) {
			return i, f, true
		}
	}
	return -1, NestedField{}, false
}

// ListType is a list of elements with its own element field id.
type ListType struct {
	ElementID       int
	Element         Type
	ElementRequired bool
}

func (*ListType) isType() {}

func (l *ListType) String() string { return "list<" + l.Element.String() + ">" }

// MapType is a map with key and value field ids.
type MapType struct {
	KeyID         int
	Key           Type
	ValueID       int
	Value         Type
	ValueRequired bool
}

func (*MapType) isType() {}

func (m *MapType) String() string {
	return "map<" + m.Key.String() + ", " + m.Value.String() + ">"
}

// Schema is the top-level struct of a table or metadata table.
type Schema struct {
	// SchemaID identifies the schema within table metadata
	SchemaID int

	// IdentifierFieldIDs lists the fields that identify a row, if any
	IdentifierFieldIDs []int

	fields []NestedField
}

// NewSchema creates a schema from top-level fields.
func NewSchema(id int, fields ...NestedField) *Schema {
	return &Schema{SchemaID: id, fields: fields}
}

// Fields returns the top-level fields.
func (s *Schema) Fields() []NestedField { return s.fields }

// AsStruct returns the schema as a struct type.
func (s *Schema) AsStruct() *StructType { return &StructType{Fields: s.fields} }

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString("table {\n")
	for _, f := range s.fields {
		b.WriteString("  ")
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// FindField returns the field with the given id at any nesting depth.
func (s *Schema) FindField(id int) (NestedField, bool) {
	var found NestedField
	ok := false
	walkFields(s.fields, func(f NestedField) bool {
		if f.ID == id {
			found, ok = f, true
			return false
		}
		return true
	})
	return found, ok
}

// FindFieldByName resolves a dotted name such as "data_file.file_path".
func (s *Schema) FindFieldByName(name string, caseSensitive bool) (NestedField, bool) {
	acc, ok := s.Accessor(name, caseSensitive)
	if !ok {
		return NestedField{}, false
	}
	return acc.Field, true
}

// HighestFieldID returns the largest field id in the schema.
func (s *Schema) HighestFieldID() int {
	highest := 0
	walkFields(s.fields, func(f NestedField) bool {
		if f.ID > highest {
			highest = f.ID
		}
		return true
	})
	return highest
}

// LeafNames returns the dotted names of every non-struct field, in schema order.
func (s *Schema) LeafNames() []string {
	var names []string
	var visit func(prefix string, fields []NestedField)
	visit = func(prefix string, fields []NestedField) {
		for _, f := range fields {
			name := prefix + f.Name
			if st, ok := f.Type.(*StructType); ok {
				visit(name+".", st.Fields)
				continue
			}
			names = append(names, name)
		}
	}
	visit("", s.fields)
	return names
}

// walkFields visits fields depth-first until fn returns false.
func walkFields(fields []NestedField, fn func(NestedField) bool) bool {
	for _, f := range fields {
		if !fn(f) {
			return false
		}
		switch t := f.Type.(type) {
		case *StructType:
			if !walkFields(t.Fields, fn) {
				return false
			}
		case *ListType:
			elem := NestedField{ID: t.ElementID, Name: "element", Type: t.Element, Required: t.ElementRequired}
			if !walkFields([]NestedField{elem}, fn) {
				return false
			}
		case *MapType:
			key := NestedField{ID: t.KeyID, Name: "key", Type: t.Key, Required: true}
			value := NestedField{ID: t.ValueID, Name: "value", Type: t.Value, Required: t.ValueRequired}
			if !walkFields([]NestedField{key, value}, fn) {
				return false
			}
		}
	}
	return true
}
