package table

import (
	"context"
	"encoding/binary"
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/storage"
)

// Operations gives access to a table's current metadata and commits new
// metadata versions.
type Operations interface {
	// Current returns the metadata as of the last refresh or commit.
	Current() *TableMetadata

	// Refresh reloads the current metadata.
	Refresh(ctx context.Context) (*TableMetadata, error)

	// Commit replaces base with next. It fails with CATALOG/COMMIT_CONFLICT
	// when base is no longer current.
	Commit(ctx context.Context, base, next *TableMetadata) error

	// IO returns the file I/O used for metadata and data files.
	IO() storage.FileIO

	// MetadataFileLocation returns the location of a file under the table's
	// metadata directory.
	MetadataFileLocation(name string) string
}

// NewMetadataFileName returns a unique name for the next metadata version.
func NewMetadataFileName(version int) string {
	return fmt.Sprintf("%05d-%s.metadata.json", version, uuid.NewString())
}

// MetadataLocation returns the location of a file under a table location's
// metadata directory.
func MetadataLocation(tableLocation, name string) string {
	return path.Join(tableLocation, "metadata", name)
}

// NewSnapshotID returns a random positive snapshot id.
func NewSnapshotID() int64 {
	u := uuid.New()
	msb := binary.BigEndian.Uint64(u[:8])
	lsb := binary.BigEndian.Uint64(u[8:])
	return int64((msb ^ lsb) & (1<<63 - 1))
}

// MemoryOperations keeps the current metadata pointer in memory and writes
// every committed version to storage. It backs tables that are not registered
// in a catalog.
type MemoryOperations struct {
	mu       sync.Mutex
	io       storage.FileIO
	location string
	current  *TableMetadata
	version  int
	lastFile string
}

// NewMemoryOperations creates operations for a table at location. meta may be
// nil until the first commit.
func NewMemoryOperations(io storage.FileIO, location string, meta *TableMetadata) *MemoryOperations {
	return &MemoryOperations{io: io, location: location, current: meta}
}

func (o *MemoryOperations) Current() *TableMetadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *MemoryOperations) Refresh(ctx context.Context) (*TableMetadata, error) {
	return o.Current(), nil
}

func (o *MemoryOperations) Commit(ctx context.Context, base, next *TableMetadata) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if base != o.current {
		return metaerrors.NewCatalogError(metaerrors.CodeCommitConflict,
			"table metadata changed since base was read", nil)
	}

	location := MetadataLocation(o.location, NewMetadataFileName(o.version+1))
	if err := WriteMetadata(ctx, o.io, location, next); err != nil {
		return metaerrors.NewStorageError(metaerrors.CodeWriteFailed, "failed to write metadata", err)
	}

	o.version++
	o.current = next
	o.lastFile = location
	return nil
}

func (o *MemoryOperations) IO() storage.FileIO { return o.io }

func (o *MemoryOperations) MetadataFileLocation(name string) string {
	return MetadataLocation(o.location, name)
}

// MetadataFile returns the location of the last committed metadata file.
func (o *MemoryOperations) MetadataFile() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastFile
}
