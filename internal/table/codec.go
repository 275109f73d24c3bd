package table

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/pkg/types"
)

// Manifest lists and manifests are snappy block-compressed JSON documents
// prefixed with a four byte magic.
var (
	manifestListMagic = []byte("MTL1")
	manifestMagic     = []byte("MTM1")
)

type manifestListFile struct {
	FormatVersion    int            `json:"format-version"`
	SnapshotID       int64          `json:"snapshot-id"`
	ParentSnapshotID *int64         `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64          `json:"sequence-number"`
	Manifests        []ManifestFile `json:"manifests"`
}

type manifestFile struct {
	FormatVersion int             `json:"format-version"`
	SpecID        int             `json:"partition-spec-id"`
	Content       ManifestContent `json:"content"`
	Entries       []ManifestEntry `json:"entries"`
}

// EncodeManifestList encodes the manifest list of a snapshot.
func EncodeManifestList(snapshot *Snapshot, manifests []ManifestFile) ([]byte, error) {
	doc := manifestListFile{
		FormatVersion:    FormatVersion,
		SnapshotID:       snapshot.SnapshotID,
		ParentSnapshotID: snapshot.ParentSnapshotID,
		SequenceNumber:   snapshot.SequenceNumber,
		Manifests:        manifests,
	}
	if doc.Manifests == nil {
		doc.Manifests = []ManifestFile{}
	}
	return encode(manifestListMagic, doc)
}

// DecodeManifestList decodes a manifest list.
func DecodeManifestList(data []byte) ([]ManifestFile, error) {
	var doc manifestListFile
	if err := decode(manifestListMagic, data, &doc); err != nil {
		return nil, fmt.Errorf("table: manifest list: %w", err)
	}
	return doc.Manifests, nil
}

// EncodeManifest encodes the entries of one manifest.
func EncodeManifest(specID int, content ManifestContent, entries []ManifestEntry) ([]byte, error) {
	doc := manifestFile{
		FormatVersion: FormatVersion,
		SpecID:        specID,
		Content:       content,
		Entries:       entries,
	}
	if doc.Entries == nil {
		doc.Entries = []ManifestEntry{}
	}
	return encode(manifestMagic, doc)
}

// DecodeManifest decodes the entries of one manifest. Partition values are
// coerced to the types of the matching fields in partitionType; values whose
// field id is not in partitionType are dropped.
func DecodeManifest(data []byte, partitionType *types.StructType) ([]ManifestEntry, error) {
	var doc manifestFile
	if err := decode(manifestMagic, data, &doc); err != nil {
		return nil, fmt.Errorf("table: manifest: %w", err)
	}

	for i := range doc.Entries {
		df := &doc.Entries[i].DataFile
		partition := make(map[int]any, len(df.Partition))
		for id, raw := range df.Partition {
			field, ok := partitionType.Field(id)
			if !ok {
				continue
			}
			v, err := types.Coerce(raw, field.Type)
			if err != nil {
				return nil, fmt.Errorf("table: manifest partition field %d: %w", id, err)
			}
			partition[id] = v
		}
		df.Partition = partition
	}
	return doc.Entries, nil
}

// ReadManifest reads and decodes the manifest referenced by mf.
func ReadManifest(ctx context.Context, io storage.FileIO, mf ManifestFile, partitionType *types.StructType) ([]ManifestEntry, error) {
	data, err := io.Read(ctx, mf.Path)
	if err != nil {
		return nil, fmt.Errorf("table: failed to read manifest %s: %w", mf.Path, err)
	}
	return DecodeManifest(data, partitionType)
}

func encode(magic []byte, doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(magic)+snappy.MaxEncodedLen(len(raw)))
	out = append(out, magic...)
	return append(out, snappy.Encode(nil, raw)...), nil
}

func decode(magic, data []byte, doc any) error {
	if !bytes.HasPrefix(data, magic) {
		n := len(magic)
		if len(data) < n {
			n = len(data)
		}
		return fmt.Errorf("invalid magic %q", data[:n])
	}
	raw, err := snappy.Decode(nil, data[len(magic):])
	if err != nil {
		return fmt.Errorf("corrupt block: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(doc)
}
