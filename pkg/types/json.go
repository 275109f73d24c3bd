package types

import (
	"encoding/json"
	"fmt"
)

type fieldJSON struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Required bool            `json:"required"`
	Type     json.RawMessage `json:"type"`
	Doc      string          `json:"doc,omitempty"`
}

type structJSON struct {
	Type   string      `json:"type"`
	Fields []fieldJSON `json:"fields"`
}

type listJSON struct {
	Type            string          `json:"type"`
	ElementID       int             `json:"element-id"`
	Element         json.RawMessage `json:"element"`
	ElementRequired bool            `json:"element-required"`
}

type mapJSON struct {
	Type          string          `json:"type"`
	KeyID         int             `json:"key-id"`
	Key           json.RawMessage `json:"key"`
	ValueID       int             `json:"value-id"`
	Value         json.RawMessage `json:"value"`
	ValueRequired bool            `json:"value-required"`
}

type schemaJSON struct {
	Type               string      `json:"type"`
	SchemaID           int         `json:"schema-id"`
	IdentifierFieldIDs []int       `json:"identifier-field-ids,omitempty"`
	Fields             []fieldJSON `json:"fields"`
}

// MarshalJSON encodes the schema in the table-format schema JSON layout.
func (s *Schema) MarshalJSON() ([]byte, error) {
	fields, err := marshalFields(s.fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(schemaJSON{
		Type:               "struct",
		SchemaID:           s.SchemaID,
		IdentifierFieldIDs: s.IdentifierFieldIDs,
		Fields:             fields,
	})
}

// UnmarshalJSON decodes a schema from its JSON layout.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var sj schemaJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return err
	}
	fields, err := unmarshalFields(sj.Fields)
	if err != nil {
		return err
	}
	s.SchemaID = sj.SchemaID
	s.IdentifierFieldIDs = sj.IdentifierFieldIDs
	s.fields = fields
	return nil
}

// MarshalType encodes a single type. Primitives encode as JSON strings.
func MarshalType(t Type) (json.RawMessage, error) {
	switch tt := t.(type) {
	case PrimitiveType:
		return json.Marshal(tt.String())
	case *StructType:
		fields, err := marshalFields(tt.Fields)
		if err != nil {
			return nil, err
		}
		return json.Marshal(structJSON{Type: "struct", Fields: fields})
	case *ListType:
		elem, err := MarshalType(tt.Element)
		if err != nil {
			return nil, err
		}
		return json.Marshal(listJSON{
			Type:            "list",
			ElementID:       tt.ElementID,
			Element:         elem,
			ElementRequired: tt.ElementRequired,
		})
	case *MapType:
		key, err := MarshalType(tt.Key)
		if err != nil {
			return nil, err
		}
		value, err := MarshalType(tt.Value)
		if err != nil {
			return nil, err
		}
		return json.Marshal(mapJSON{
			Type:          "map",
			KeyID:         tt.KeyID,
			Key:           key,
			ValueID:       tt.ValueID,
			Value:         value,
			ValueRequired: tt.ValueRequired,
		})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, t)
	}
}

// UnmarshalType decodes a single type.
func UnmarshalType(raw json.RawMessage) (Type, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, err
		}
		return ParsePrimitive(name)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case "struct":
		var sj structJSON
		if err := json.Unmarshal(raw, &sj); err != nil {
			return nil, err
		}
		fields, err := unmarshalFields(sj.Fields)
		if err != nil {
			return nil, err
		}
		return &StructType{Fields: fields}, nil
	case "list":
		var lj listJSON
		if err := json.Unmarshal(raw, &lj); err != nil {
			return nil, err
		}
		elem, err := UnmarshalType(lj.Element)
		if err != nil {
			return nil, err
		}
		return &ListType{ElementID: lj.ElementID, Element: elem, ElementRequired: lj.ElementRequired}, nil
	case "map":
		var mj mapJSON
		if err := json.Unmarshal(raw, &mj); err != nil {
			return nil, err
		}
		key, err := UnmarshalType(mj.Key)
		if err != nil {
			return nil, err
		}
		value, err := UnmarshalType(mj.Value)
		if err != nil {
			return nil, err
		}
		return &MapType{KeyID: mj.KeyID, Key: key, ValueID: mj.ValueID, Value: value, ValueRequired: mj.ValueRequired}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

func marshalFields(fields []NestedField) ([]fieldJSON, error) {
	out := make([]fieldJSON, len(fields))
	for i, f := range fields {
		t, err := MarshalType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		out[i] = fieldJSON{ID: f.ID, Name: f.Name, Required: f.Required, Type: t, Doc: f.Doc}
	}
	return out, nil
}

func unmarshalFields(fields []fieldJSON) ([]NestedField, error) {
	out := make([]NestedField, len(fields))
	for i, fj := range fields {
		t, err := UnmarshalType(fj.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fj.Name, err)
		}
		out[i] = NestedField{ID: fj.ID, Name: fj.Name, Type: t, Required: fj.Required, Doc: fj.Doc}
	}
	return out, nil
}
