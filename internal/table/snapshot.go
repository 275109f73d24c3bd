package table

import (
	"context"
	"fmt"

	"github.com/arkilian/metatables/internal/storage"
)

// Snapshot summary operations.
const (
	OperationAppend    = "append"
	OperationDelete    = "delete"
	OperationOverwrite = "overwrite"
)

// Snapshot is the state of a table at some point in history.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         *int              `json:"schema-id,omitempty"`
}

// AllManifests reads the snapshot's manifest list and returns every data and
// delete manifest visible at this snapshot. A snapshot without a manifest list
// has no manifests.
func (s *Snapshot) AllManifests(ctx context.Context, io storage.FileIO) ([]ManifestFile, error) {
	if s.ManifestList == "" {
		return nil, nil
	}
	data, err := io.Read(ctx, s.ManifestList)
	if err != nil {
		return nil, fmt.Errorf("table: failed to read manifest list of snapshot %d: %w", s.SnapshotID, err)
	}
	return DecodeManifestList(data)
}

// Operation returns the operation recorded in the snapshot summary.
func (s *Snapshot) Operation() string {
	return s.Summary["operation"]
}
