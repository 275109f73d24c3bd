package table

// ManifestContent distinguishes data manifests from delete manifests.
type ManifestContent int

const (
	ManifestContentData    ManifestContent = 0
	ManifestContentDeletes ManifestContent = 1
)

func (c ManifestContent) String() string {
	if c == ManifestContentDeletes {
		return "deletes"
	}
	return "data"
}

// ManifestFile is one entry of a manifest list: a reference to a manifest
// with summary counts.
type ManifestFile struct {
	Path               string          `json:"manifest_path"`
	Length             int64           `json:"manifest_length"`
	SpecID             int             `json:"partition_spec_id"`
	Content            ManifestContent `json:"content"`
	SequenceNumber     int64           `json:"sequence_number"`
	MinSequenceNumber  int64           `json:"min_sequence_number"`
	AddedSnapshotID    int64           `json:"added_snapshot_id"`
	AddedFilesCount    int             `json:"added_files_count"`
	ExistingFilesCount int             `json:"existing_files_count"`
	DeletedFilesCount  int             `json:"deleted_files_count"`
	AddedRowsCount     int64           `json:"added_rows_count"`
	ExistingRowsCount  int64           `json:"existing_rows_count"`
	DeletedRowsCount   int64           `json:"deleted_rows_count"`
}

// Key identifies the physical manifest. Two references to the same manifest
// obtained from different snapshots have the same key.
func (m ManifestFile) Key() string {
	return m.Path
}

// EntryStatus is the lifecycle state of a file within a manifest.
type EntryStatus int32

const (
	EntryExisting EntryStatus = 0
	EntryAdded    EntryStatus = 1
	EntryDeleted  EntryStatus = 2
)

func (s EntryStatus) String() string {
	switch s {
	case EntryAdded:
		return "ADDED"
	case EntryDeleted:
		return "DELETED"
	default:
		return "EXISTING"
	}
}

// FileContent is the kind of file a DataFile describes.
type FileContent int32

const (
	FileContentData            FileContent = 0
	FileContentPositionDeletes FileContent = 1
	FileContentEqualityDeletes FileContent = 2
)

// ManifestEntry registers one data or delete file in a manifest.
type ManifestEntry struct {
	Status             EntryStatus `json:"status"`
	SnapshotID         *int64      `json:"snapshot_id,omitempty"`
	SequenceNumber     *int64      `json:"sequence_number,omitempty"`
	FileSequenceNumber *int64      `json:"file_sequence_number,omitempty"`
	DataFile           DataFile    `json:"data_file"`
}

// DataFile describes a file and its column statistics. Statistics maps are
// keyed by column field id; partition values are keyed by partition field id.
type DataFile struct {
	Content         FileContent    `json:"content"`
	FilePath        string         `json:"file_path"`
	FileFormat      string         `json:"file_format"`
	Partition       map[int]any    `json:"partition"`
	RecordCount     int64          `json:"record_count"`
	FileSizeInBytes int64          `json:"file_size_in_bytes"`
	ColumnSizes     map[int]int64  `json:"column_sizes,omitempty"`
	ValueCounts     map[int]int64  `json:"value_counts,omitempty"`
	NullValueCounts map[int]int64  `json:"null_value_counts,omitempty"`
	NaNValueCounts  map[int]int64  `json:"nan_value_counts,omitempty"`
	LowerBounds     map[int][]byte `json:"lower_bounds,omitempty"`
	UpperBounds     map[int][]byte `json:"upper_bounds,omitempty"`
	KeyMetadata     []byte         `json:"key_metadata,omitempty"`
	SplitOffsets    []int64        `json:"split_offsets,omitempty"`
	EqualityIDs     []int          `json:"equality_ids,omitempty"`
	SortOrderID     *int           `json:"sort_order_id,omitempty"`
}
