// Package metatable implements read-only metadata tables over a table's
// manifest bookkeeping. ALL_ENTRIES exposes every manifest entry recorded in
// any snapshot's manifests; ENTRIES exposes the entries of one snapshot.
package metatable

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// MetadataTableType names a kind of metadata table.
type MetadataTableType string

const (
	Entries    MetadataTableType = "ENTRIES"
	AllEntries MetadataTableType = "ALL_ENTRIES"
)

// Types lists every supported metadata table type.
var Types = []MetadataTableType{Entries, AllEntries}

// ParseType resolves a metadata table name such as "all_entries",
// ignoring case.
func ParseType(name string) (MetadataTableType, error) {
	switch t := MetadataTableType(strings.ToUpper(name)); t {
	case Entries, AllEntries:
		return t, nil
	default:
		return "", metaerrors.NewPlanningError(metaerrors.CodeUnknownMetadataTable,
			fmt.Sprintf("unknown metadata table: %s", name), nil).
			WithDetails(map[string]interface{}{"name": name})
	}
}

// Suffix returns the name suffix of the metadata table type, e.g. "all_entries".
func (t MetadataTableType) Suffix() string {
	return strings.ToLower(string(t))
}

// Table is a metadata table backed by a base table.
type Table interface {
	// Name is "<table>.<suffix>".
	Name() string

	Type() MetadataTableType

	// Table returns the base table.
	Table() *table.Table

	// Schema returns the row schema, derived from current table metadata on
	// every call.
	Schema() (*types.Schema, error)

	// NewScan returns an unrefined scan over the metadata table.
	NewScan() (scan.TableScan, error)
}

// PlanStats describes one planning call.
type PlanStats struct {
	Snapshots        int
	ManifestMentions int
	Manifests        int
	Duration         time.Duration
}

// PlanObserver is told about every planning call, failed or not.
type PlanObserver interface {
	ObservePlan(tableType string, stats PlanStats, err error)
}

type options struct {
	logger   log.Logger
	observer PlanObserver
}

// Option configures a metadata table.
type Option func(*options)

// WithLogger sets the logger used when planning.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver sets the observer notified after planning.
func WithObserver(observer PlanObserver) Option {
	return func(o *options) { o.observer = observer }
}

func buildOptions(opts []Option) options {
	o := options{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) observe(tableType string, stats PlanStats, err error) {
	if o.observer != nil {
		o.observer.ObservePlan(tableType, stats, err)
	}
}

// ByName builds the metadata table of the given type over tbl.
func ByName(tbl *table.Table, kind MetadataTableType, opts ...Option) (Table, error) {
	switch kind {
	case AllEntries:
		return NewAllEntriesTable(tbl, opts...), nil
	case Entries:
		return NewEntriesTable(tbl, opts...), nil
	default:
		return nil, metaerrors.NewPlanningError(metaerrors.CodeUnknownMetadataTable,
			fmt.Sprintf("unknown metadata table type: %s", kind), nil)
	}
}

func metadataTableName(tbl *table.Table, kind MetadataTableType) string {
	return tbl.Name() + "." + kind.Suffix()
}
