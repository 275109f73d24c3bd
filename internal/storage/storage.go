// Package storage provides the file I/O abstraction used to read and write
// table metadata, manifest lists, manifests and data files.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// FileIO abstracts reading and writing whole objects by location.
// Locations are slash-separated keys relative to the warehouse root.
// Implementations must be safe for concurrent use.
type FileIO interface {
	// Read returns the full contents of the object at location.
	// Returns ErrObjectNotFound if it does not exist.
	Read(ctx context.Context, location string) ([]byte, error)

	// Write creates or replaces the object at location.
	Write(ctx context.Context, location string, data []byte) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, location string) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, location string) (bool, error)

	// List returns all object locations under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
