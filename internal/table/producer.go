package table

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	metaerrors "github.com/arkilian/metatables/internal/errors"
)

// DefaultCommitRetries is the number of times a conflicting commit is retried
// against refreshed metadata.
const DefaultCommitRetries = 4

// SnapshotProducer builds and commits one new snapshot. Added files go into a
// single new manifest; manifests that register a deleted file are rewritten
// with that entry marked DELETED; all other manifests are carried forward.
type SnapshotProducer struct {
	ops        Operations
	operation  string
	added      []DataFile
	deleted    map[string]struct{}
	summary    map[string]string
	maxRetries int
}

func newSnapshotProducer(ops Operations, operation string) *SnapshotProducer {
	return &SnapshotProducer{
		ops:        ops,
		operation:  operation,
		deleted:    make(map[string]struct{}),
		summary:    make(map[string]string),
		maxRetries: DefaultCommitRetries,
	}
}

// AppendFiles adds data files to the snapshot.
func (p *SnapshotProducer) AppendFiles(files ...DataFile) *SnapshotProducer {
	p.added = append(p.added, files...)
	return p
}

// DeleteFiles removes data files, by path, from the snapshot.
func (p *SnapshotProducer) DeleteFiles(paths ...string) *SnapshotProducer {
	for _, path := range paths {
		p.deleted[path] = struct{}{}
	}
	return p
}

// Set adds a property to the snapshot summary.
func (p *SnapshotProducer) Set(key, value string) *SnapshotProducer {
	p.summary[key] = value
	return p
}

// Commit writes manifests and a manifest list and commits new metadata. A
// commit conflict is retried against refreshed metadata.
func (p *SnapshotProducer) Commit(ctx context.Context) (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		base := p.ops.Current()
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 10 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			refreshed, err := p.ops.Refresh(ctx)
			if err != nil {
				return nil, err
			}
			base = refreshed
		}
		if base == nil {
			return nil, fmt.Errorf("table: cannot commit to a table without metadata")
		}

		next, snapshot, written, err := p.apply(ctx, base, attempt)
		if err != nil {
			p.cleanup(ctx, written)
			return nil, err
		}

		err = p.ops.Commit(ctx, base, next)
		if err == nil {
			return snapshot, nil
		}
		p.cleanup(ctx, written)
		if !metaerrors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *SnapshotProducer) cleanup(ctx context.Context, locations []string) {
	for _, loc := range locations {
		_ = p.ops.IO().Delete(ctx, loc)
	}
}

func (p *SnapshotProducer) apply(ctx context.Context, base *TableMetadata, attempt int) (*TableMetadata, *Snapshot, []string, error) {
	io := p.ops.IO()
	snapshotID := NewSnapshotID()
	sequenceNumber := base.LastSequenceNumber + 1
	commitUUID := uuid.NewString()

	partitionType, err := PartitionType(base)
	if err != nil {
		return nil, nil, nil, err
	}

	var existing []ManifestFile
	parent := base.CurrentSnapshot()
	if parent != nil {
		existing, err = parent.AllManifests(ctx, io)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	var (
		manifests      []ManifestFile
		written        []string
		deletedRecords int64
		manifestCount  int
	)
	found := make(map[string]bool, len(p.deleted))

	writeManifest := func(specID int, content ManifestContent, entries []ManifestEntry) (ManifestFile, error) {
		manifestCount++
		location := p.ops.MetadataFileLocation(fmt.Sprintf("%s-m%d.manifest", commitUUID, manifestCount))
		data, err := EncodeManifest(specID, content, entries)
		if err != nil {
			return ManifestFile{}, err
		}
		if err := io.Write(ctx, location, data); err != nil {
			return ManifestFile{}, err
		}
		written = append(written, location)
		return summarizeManifest(location, int64(len(data)), specID, content, snapshotID, sequenceNumber, entries), nil
	}

	if len(p.added) > 0 {
		spec := base.Spec()
		entries := make([]ManifestEntry, len(p.added))
		for i, df := range p.added {
			sid, seq := snapshotID, sequenceNumber
			entries[i] = ManifestEntry{
				Status:             EntryAdded,
				SnapshotID:         &sid,
				SequenceNumber:     &seq,
				FileSequenceNumber: &seq,
				DataFile:           df,
			}
		}
		mf, err := writeManifest(spec.SpecID, ManifestContentData, entries)
		if err != nil {
			return nil, nil, written, err
		}
		manifests = append(manifests, mf)
	}

	for _, mf := range existing {
		if len(p.deleted) == 0 || mf.Content != ManifestContentData {
			manifests = append(manifests, mf)
			continue
		}

		entries, err := ReadManifest(ctx, io, mf, partitionType)
		if err != nil {
			return nil, nil, written, err
		}

		touched := false
		for _, e := range entries {
			if _, ok := p.deleted[e.DataFile.FilePath]; ok && e.Status != EntryDeleted {
				touched = true
				break
			}
		}
		if !touched {
			manifests = append(manifests, mf)
			continue
		}

		rewritten := make([]ManifestEntry, 0, len(entries))
		for _, e := range entries {
			if e.Status == EntryDeleted {
				continue
			}
			if _, ok := p.deleted[e.DataFile.FilePath]; ok {
				sid := snapshotID
				e.Status = EntryDeleted
				e.SnapshotID = &sid
				found[e.DataFile.FilePath] = true
				deletedRecords += e.DataFile.RecordCount
			} else {
				e.Status = EntryExisting
			}
			rewritten = append(rewritten, e)
		}
		newMF, err := writeManifest(mf.SpecID, mf.Content, rewritten)
		if err != nil {
			return nil, nil, written, err
		}
		manifests = append(manifests, newMF)
	}

	for path := range p.deleted {
		if !found[path] {
			return nil, nil, written, fmt.Errorf("table: cannot delete %s: file is not live in the current snapshot", path)
		}
	}

	snapshot := &Snapshot{
		SnapshotID:     snapshotID,
		SequenceNumber: sequenceNumber,
		TimestampMs:    time.Now().UnixMilli(),
		ManifestList:   p.ops.MetadataFileLocation(fmt.Sprintf("snap-%d-%d-%s.manifest-list", snapshotID, attempt+1, commitUUID)),
		Summary:        p.buildSummary(deletedRecords),
	}
	if parent != nil {
		parentID := parent.SnapshotID
		snapshot.ParentSnapshotID = &parentID
	}
	schemaID := base.CurrentSchemaID
	snapshot.SchemaID = &schemaID

	listData, err := EncodeManifestList(snapshot, manifests)
	if err != nil {
		return nil, nil, written, err
	}
	if err := io.Write(ctx, snapshot.ManifestList, listData); err != nil {
		return nil, nil, written, err
	}
	written = append(written, snapshot.ManifestList)

	next := base.clone()
	next.Snapshots = append(next.Snapshots, snapshot)
	next.CurrentSnapshotID = &snapshot.SnapshotID
	next.LastSequenceNumber = sequenceNumber
	next.LastUpdatedMs = snapshot.TimestampMs
	next.SnapshotLog = append(next.SnapshotLog, SnapshotLogEntry{
		SnapshotID:  snapshot.SnapshotID,
		TimestampMs: snapshot.TimestampMs,
	})
	return next, snapshot, written, nil
}

func (p *SnapshotProducer) buildSummary(deletedRecords int64) map[string]string {
	summary := map[string]string{"operation": p.operation}
	if len(p.added) > 0 && len(p.deleted) > 0 {
		summary["operation"] = OperationOverwrite
	}

	var addedRecords int64
	for _, df := range p.added {
		addedRecords += df.RecordCount
	}
	summary["added-data-files"] = strconv.Itoa(len(p.added))
	summary["added-records"] = strconv.FormatInt(addedRecords, 10)
	summary["deleted-data-files"] = strconv.Itoa(len(p.deleted))
	summary["deleted-records"] = strconv.FormatInt(deletedRecords, 10)

	for k, v := range p.summary {
		summary[k] = v
	}
	return summary
}

func summarizeManifest(location string, length int64, specID int, content ManifestContent, snapshotID, sequenceNumber int64, entries []ManifestEntry) ManifestFile {
	mf := ManifestFile{
		Path:              location,
		Length:            length,
		SpecID:            specID,
		Content:           content,
		SequenceNumber:    sequenceNumber,
		MinSequenceNumber: sequenceNumber,
		AddedSnapshotID:   snapshotID,
	}
	for _, e := range entries {
		if e.SequenceNumber != nil && *e.SequenceNumber < mf.MinSequenceNumber {
			mf.MinSequenceNumber = *e.SequenceNumber
		}
		switch e.Status {
		case EntryAdded:
			mf.AddedFilesCount++
			mf.AddedRowsCount += e.DataFile.RecordCount
		case EntryExisting:
			mf.ExistingFilesCount++
			mf.ExistingRowsCount += e.DataFile.RecordCount
		case EntryDeleted:
			mf.DeletedFilesCount++
			mf.DeletedRowsCount += e.DataFile.RecordCount
		}
	}
	return mf
}
