// Package table implements table metadata for versioned tables: snapshots,
// partition specs, manifest lists, manifests and the operations that commit
// new metadata versions.
package table

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/pkg/types"
)

// FormatVersion is the metadata format version written by this package.
const FormatVersion = 2

// TableMetadata is the persisted state of a table at one version.
type TableMetadata struct {
	FormatVersion      int                `json:"format-version"`
	TableUUID          string             `json:"table-uuid"`
	Location           string             `json:"location"`
	LastSequenceNumber int64              `json:"last-sequence-number"`
	LastUpdatedMs      int64              `json:"last-updated-ms"`
	LastColumnID       int                `json:"last-column-id"`
	CurrentSchemaID    int                `json:"current-schema-id"`
	Schemas            []*types.Schema    `json:"schemas"`
	DefaultSpecID      int                `json:"default-spec-id"`
	PartitionSpecs     []PartitionSpec    `json:"partition-specs"`
	LastPartitionID    int                `json:"last-partition-id"`
	Properties         map[string]string  `json:"properties,omitempty"`
	CurrentSnapshotID  *int64             `json:"current-snapshot-id,omitempty"`
	Snapshots          []*Snapshot        `json:"snapshots"`
	SnapshotLog        []SnapshotLogEntry `json:"snapshot-log"`
}

// SnapshotLogEntry records when a snapshot became current.
type SnapshotLogEntry struct {
	SnapshotID  int64 `json:"snapshot-id"`
	TimestampMs int64 `json:"timestamp-ms"`
}

// NewTableMetadata builds the first version of a table's metadata.
// Partition field ids in spec that are zero are assigned from PartitionFieldIDStart.
func NewTableMetadata(location string, schema *types.Schema, spec PartitionSpec, props map[string]string) (*TableMetadata, error) {
	if schema == nil || len(schema.Fields()) == 0 {
		return nil, fmt.Errorf("table: schema must have at least one column")
	}
	if props == nil {
		props = map[string]string{}
	}

	lastPartitionID := PartitionFieldIDStart - 1
	fields := make([]PartitionField, len(spec.Fields))
	for i, pf := range spec.Fields {
		if pf.FieldID == 0 {
			pf.FieldID = lastPartitionID + 1
		}
		if pf.FieldID > lastPartitionID {
			lastPartitionID = pf.FieldID
		}
		fields[i] = pf
	}
	spec = PartitionSpec{SpecID: spec.SpecID, Fields: fields}

	if err := spec.Validate(schema); err != nil {
		return nil, err
	}

	meta := &TableMetadata{
		FormatVersion:   FormatVersion,
		TableUUID:       uuid.NewString(),
		Location:        location,
		LastUpdatedMs:   time.Now().UnixMilli(),
		LastColumnID:    schema.HighestFieldID(),
		CurrentSchemaID: schema.SchemaID,
		Schemas:         []*types.Schema{schema},
		DefaultSpecID:   spec.SpecID,
		PartitionSpecs:  []PartitionSpec{spec},
		LastPartitionID: lastPartitionID,
		Properties:      props,
		Snapshots:       []*Snapshot{},
		SnapshotLog:     []SnapshotLogEntry{},
	}
	return meta, nil
}

// CurrentSchema returns the schema with CurrentSchemaID.
func (m *TableMetadata) CurrentSchema() *types.Schema {
	for _, s := range m.Schemas {
		if s.SchemaID == m.CurrentSchemaID {
			return s
		}
	}
	if len(m.Schemas) > 0 {
		return m.Schemas[len(m.Schemas)-1]
	}
	return types.NewSchema(0)
}

// Spec returns the default partition spec.
func (m *TableMetadata) Spec() PartitionSpec {
	for _, s := range m.PartitionSpecs {
		if s.SpecID == m.DefaultSpecID {
			return s
		}
	}
	return Unpartitioned()
}

// SpecsByID returns the partition spec registry keyed by spec id.
func (m *TableMetadata) SpecsByID() map[int]PartitionSpec {
	specs := make(map[int]PartitionSpec, len(m.PartitionSpecs))
	for _, s := range m.PartitionSpecs {
		specs[s.SpecID] = s
	}
	return specs
}

// CurrentSnapshot returns the current snapshot, or nil for an empty table.
func (m *TableMetadata) CurrentSnapshot() *Snapshot {
	if m.CurrentSnapshotID == nil {
		return nil
	}
	return m.SnapshotByID(*m.CurrentSnapshotID)
}

// SnapshotByID returns the snapshot with the given id, or nil.
func (m *TableMetadata) SnapshotByID(id int64) *Snapshot {
	for _, s := range m.Snapshots {
		if s.SnapshotID == id {
			return s
		}
	}
	return nil
}

// Validate rejects metadata that cannot be read consistently.
func (m *TableMetadata) Validate() error {
	if m.FormatVersion < 1 || m.FormatVersion > FormatVersion {
		return fmt.Errorf("table: unsupported format version %d", m.FormatVersion)
	}
	if len(m.Schemas) == 0 {
		return fmt.Errorf("table: metadata has no schemas")
	}

	found := false
	for _, s := range m.Schemas {
		if s.SchemaID == m.CurrentSchemaID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("table: current schema %d not found", m.CurrentSchemaID)
	}

	if _, ok := m.SpecsByID()[m.DefaultSpecID]; !ok && len(m.PartitionSpecs) > 0 {
		return fmt.Errorf("table: default spec %d not found", m.DefaultSpecID)
	}

	// The unified partition type must be well-defined across spec history.
	if _, err := PartitionType(m); err != nil {
		return err
	}

	seen := make(map[int64]bool, len(m.Snapshots))
	for _, s := range m.Snapshots {
		if seen[s.SnapshotID] {
			return fmt.Errorf("table: duplicate snapshot id %d", s.SnapshotID)
		}
		seen[s.SnapshotID] = true
	}
	if m.CurrentSnapshotID != nil && !seen[*m.CurrentSnapshotID] {
		return fmt.Errorf("table: current snapshot %d not found", *m.CurrentSnapshotID)
	}
	return nil
}

// clone returns a copy whose slices can be appended to without affecting m.
func (m *TableMetadata) clone() *TableMetadata {
	cp := *m
	cp.Schemas = append([]*types.Schema(nil), m.Schemas...)
	cp.PartitionSpecs = append([]PartitionSpec(nil), m.PartitionSpecs...)
	cp.Snapshots = append([]*Snapshot(nil), m.Snapshots...)
	cp.SnapshotLog = append([]SnapshotLogEntry(nil), m.SnapshotLog...)
	cp.Properties = make(map[string]string, len(m.Properties))
	for k, v := range m.Properties {
		cp.Properties[k] = v
	}
	return &cp
}

// WithPartitionSpec returns new metadata whose default spec is spec. New
// partition fields with a zero field id are assigned fresh ids; fields whose
// source and transform match an earlier spec reuse that field's id.
func (m *TableMetadata) WithPartitionSpec(spec PartitionSpec) (*TableMetadata, error) {
	next := m.clone()

	nextSpecID := 0
	for _, s := range m.PartitionSpecs {
		if s.SpecID >= nextSpecID {
			nextSpecID = s.SpecID + 1
		}
	}

	fields := make([]PartitionField, len(spec.Fields))
	for i, pf := range spec.Fields {
		if pf.FieldID == 0 {
			pf.FieldID = m.reusablePartitionFieldID(pf)
		}
		if pf.FieldID == 0 {
			next.LastPartitionID++
			pf.FieldID = next.LastPartitionID
		}
		if pf.FieldID > next.LastPartitionID {
			next.LastPartitionID = pf.FieldID
		}
		fields[i] = pf
	}

	newSpec := PartitionSpec{SpecID: nextSpecID, Fields: fields}
	if err := newSpec.Validate(m.CurrentSchema()); err != nil {
		return nil, err
	}

	next.PartitionSpecs = append(next.PartitionSpecs, newSpec)
	next.DefaultSpecID = nextSpecID
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

func (m *TableMetadata) reusablePartitionFieldID(pf PartitionField) int {
	for _, s := range m.PartitionSpecs {
		for _, existing := range s.Fields {
			if existing.SourceID == pf.SourceID && existing.Transform == pf.Transform {
				return existing.FieldID
			}
		}
	}
	return 0
}

// ReadMetadata reads and validates a metadata file.
func ReadMetadata(ctx context.Context, io storage.FileIO, location string) (*TableMetadata, error) {
	data, err := io.Read(ctx, location)
	if err != nil {
		return nil, err
	}
	var meta TableMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("table: failed to decode metadata %s: %w", location, err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("table: invalid metadata %s: %w", location, err)
	}
	return &meta, nil
}

// WriteMetadata writes a metadata file.
func WriteMetadata(ctx context.Context, io storage.FileIO, location string, meta *TableMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("table: failed to encode metadata: %w", err)
	}
	return io.Write(ctx, location, data)
}
