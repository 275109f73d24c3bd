package metatable

import (
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// AllEntriesTable exposes the entries of every manifest referenced by any
// snapshot of the table, live or historical. Each manifest is read once even
// when many snapshots share it.
type AllEntriesTable struct {
	tbl  *table.Table
	opts options
}

var _ Table = (*AllEntriesTable)(nil)

// NewAllEntriesTable returns the ALL_ENTRIES metadata table of tbl. Its
// schema and scans follow tbl's metadata at the time they are requested.
func NewAllEntriesTable(tbl *table.Table, opts ...Option) *AllEntriesTable {
	return &AllEntriesTable{tbl: tbl, opts: buildOptions(opts)}
}

func (t *AllEntriesTable) Name() string { return metadataTableName(t.tbl, AllEntries) }

func (t *AllEntriesTable) Type() MetadataTableType { return AllEntries }

func (t *AllEntriesTable) Table() *table.Table { return t.tbl }

func (t *AllEntriesTable) Schema() (*types.Schema, error) { return entriesSchema(t.tbl) }

// NewScan returns a scan over every snapshot's manifests. It fails when the
// partition type of the table cannot be resolved.
func (t *AllEntriesTable) NewScan() (scan.TableScan, error) {
	s, err := newManifestScan(t.tbl, AllEntries, t.opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// EntriesTable exposes the entries of the manifests of one snapshot, the
// current one unless the scan selects another.
type EntriesTable struct {
	tbl  *table.Table
	opts options
}

var _ Table = (*EntriesTable)(nil)

// NewEntriesTable returns the ENTRIES metadata table of tbl.
func NewEntriesTable(tbl *table.Table, opts ...Option) *EntriesTable {
	return &EntriesTable{tbl: tbl, opts: buildOptions(opts)}
}

func (t *EntriesTable) Name() string { return metadataTableName(t.tbl, Entries) }

func (t *EntriesTable) Type() MetadataTableType { return Entries }

func (t *EntriesTable) Table() *table.Table { return t.tbl }

func (t *EntriesTable) Schema() (*types.Schema, error) { return entriesSchema(t.tbl) }

// NewScan returns a scan over the manifests of the current snapshot.
func (t *EntriesTable) NewScan() (scan.TableScan, error) {
	s, err := newManifestScan(t.tbl, Entries, t.opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}
