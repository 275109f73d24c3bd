package table

import (
	"encoding/json"
	"fmt"

	"github.com/arkilian/metatables/pkg/types"
)

// SchemaToJSON returns the JSON form of a schema.
func SchemaToJSON(schema *types.Schema) (string, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("table: failed to serialize schema: %w", err)
	}
	return string(data), nil
}

// SchemaFromJSON parses the JSON form of a schema.
func SchemaFromJSON(s string) (*types.Schema, error) {
	var schema types.Schema
	if err := json.Unmarshal([]byte(s), &schema); err != nil {
		return nil, fmt.Errorf("table: failed to parse schema: %w", err)
	}
	return &schema, nil
}

// SpecToJSON returns the JSON form of a partition spec.
func SpecToJSON(spec PartitionSpec) (string, error) {
	if spec.Fields == nil {
		spec.Fields = []PartitionField{}
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("table: failed to serialize partition spec: %w", err)
	}
	return string(data), nil
}

// SpecFromJSON parses the JSON form of a partition spec.
func SpecFromJSON(s string) (PartitionSpec, error) {
	var spec PartitionSpec
	if err := json.Unmarshal([]byte(s), &spec); err != nil {
		return PartitionSpec{}, fmt.Errorf("table: failed to parse partition spec: %w", err)
	}
	return spec, nil
}
