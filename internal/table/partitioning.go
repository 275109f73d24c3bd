package table

import (
	"fmt"
	"sort"

	"github.com/arkilian/metatables/pkg/types"
)

// PartitionFieldIDStart is the first id assigned to partition fields.
const PartitionFieldIDStart = 1000

// PartitionField derives one partition column from a source column.
type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// PartitionSpec describes how rows of a table map to partition tuples.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// Unpartitioned returns the spec with no partition fields.
func Unpartitioned() PartitionSpec {
	return PartitionSpec{SpecID: 0, Fields: []PartitionField{}}
}

// PartitionType returns the struct type of partition tuples produced by this
// spec when applied to schema. All fields are optional.
func (s PartitionSpec) PartitionType(schema *types.Schema) (*types.StructType, error) {
	fields := make([]types.NestedField, 0, len(s.Fields))
	for _, pf := range s.Fields {
		resultType, err := pf.resultType(schema)
		if err != nil {
			return nil, err
		}
		fields = append(fields, types.Optional(pf.FieldID, pf.Name, resultType))
	}
	return types.NewStructType(fields...), nil
}

// Partition computes the partition tuple of a row, keyed by partition field id.
// Values in row are keyed by source field id and must be canonical.
func (s PartitionSpec) Partition(values map[int]any) (map[int]any, error) {
	out := make(map[int]any, len(s.Fields))
	for _, pf := range s.Fields {
		t, err := ParseTransform(pf.Transform)
		if err != nil {
			return nil, err
		}
		v, err := t.Apply(values[pf.SourceID])
		if err != nil {
			return nil, fmt.Errorf("table: partition field %s: %w", pf.Name, err)
		}
		out[pf.FieldID] = v
	}
	return out, nil
}

// Validate checks the spec against schema.
func (s PartitionSpec) Validate(schema *types.Schema) error {
	seen := make(map[int]bool, len(s.Fields))
	names := make(map[string]bool, len(s.Fields))
	for _, pf := range s.Fields {
		if seen[pf.FieldID] {
			return fmt.Errorf("table: spec %d repeats partition field id %d", s.SpecID, pf.FieldID)
		}
		if names[pf.Name] {
			return fmt.Errorf("table: spec %d repeats partition field name %q", s.SpecID, pf.Name)
		}
		seen[pf.FieldID] = true
		names[pf.Name] = true
		if _, err := pf.resultType(schema); err != nil {
			return err
		}
	}
	return nil
}

func (pf PartitionField) resultType(schema *types.Schema) (types.Type, error) {
	source, ok := schema.FindField(pf.SourceID)
	if !ok {
		return nil, fmt.Errorf("table: partition field %s references unknown source column %d", pf.Name, pf.SourceID)
	}
	t, err := ParseTransform(pf.Transform)
	if err != nil {
		return nil, err
	}
	return t.ResultType(source.Type)
}

// PartitionType returns the union of partition fields across every spec the
// table has ever used, keyed by partition field id and sorted by id. All fields
// are optional because a given manifest only populates the fields of its spec.
// A void field contributes only when no other spec defines the same id.
func PartitionType(meta *TableMetadata) (*types.StructType, error) {
	schema := meta.CurrentSchema()
	byID := make(map[int]types.NestedField)
	voids := make(map[int]types.NestedField)

	for _, spec := range meta.PartitionSpecs {
		for _, pf := range spec.Fields {
			resultType, err := pf.resultType(schema)
			if err != nil {
				resultType, err = pf.resultTypeInHistory(meta)
				if err != nil {
					return nil, err
				}
			}
			field := types.Optional(pf.FieldID, pf.Name, resultType)

			if pf.Transform == "void" {
				voids[pf.FieldID] = field
				continue
			}
			if existing, ok := byID[pf.FieldID]; ok && existing.Type != field.Type {
				return nil, fmt.Errorf("table: partition field id %d has conflicting types %s and %s",
					pf.FieldID, existing.Type, field.Type)
			}
			byID[pf.FieldID] = field
		}
	}

	for id, f := range voids {
		if _, ok := byID[id]; !ok {
			byID[id] = f
		}
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fields := make([]types.NestedField, 0, len(ids))
	for _, id := range ids {
		fields = append(fields, byID[id])
	}
	return types.NewStructType(fields...), nil
}

// resultTypeInHistory resolves the source column against older schemas when it
// has been dropped from the current one.
func (pf PartitionField) resultTypeInHistory(meta *TableMetadata) (types.Type, error) {
	for i := len(meta.Schemas) - 1; i >= 0; i-- {
		if t, err := pf.resultType(meta.Schemas[i]); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("table: partition field %s references unknown source column %d", pf.Name, pf.SourceID)
}
