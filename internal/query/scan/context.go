// Package scan defines the generic table scan: an immutable scan
// configuration, the TableScan refinement API and the FileScanTask units of
// work that scans plan.
package scan

import (
	"github.com/arkilian/metatables/internal/expr"
	"github.com/arkilian/metatables/internal/iterable"
)

// Context is the immutable configuration of a scan. Every With method
// returns a modified copy and leaves the receiver unchanged.
type Context struct {
	snapshotID      *int64
	rowFilter       expr.Expression
	ignoreResiduals bool
	caseSensitive   bool
	colStats        bool
	selectedColumns []string
	pool            iterable.Pool
}

// NewContext returns the default configuration: no filter, case-sensitive
// binding, current snapshot, sequential planning.
func NewContext() Context {
	return Context{
		rowFilter:     expr.AlwaysTrue(),
		caseSensitive: true,
	}
}

// SnapshotID returns the selected snapshot, if any.
func (c Context) SnapshotID() (int64, bool) {
	if c.snapshotID == nil {
		return 0, false
	}
	return *c.snapshotID, true
}

func (c Context) RowFilter() expr.Expression {
	if c.rowFilter == nil {
		return expr.AlwaysTrue()
	}
	return c.rowFilter
}

func (c Context) IgnoreResiduals() bool { return c.ignoreResiduals }

func (c Context) CaseSensitive() bool { return c.caseSensitive }

func (c Context) ColStats() bool { return c.colStats }

// SelectedColumns returns the projected column names; empty means all.
func (c Context) SelectedColumns() []string {
	return append([]string(nil), c.selectedColumns...)
}

// Pool returns the worker pool used for planning, or nil to plan on the
// calling goroutine.
func (c Context) Pool() iterable.Pool { return c.pool }

func (c Context) WithSnapshotID(id int64) Context {
	c.snapshotID = &id
	return c
}

// WithRowFilter ANDs filter with the current row filter.
func (c Context) WithRowFilter(filter expr.Expression) Context {
	c.rowFilter = expr.NewAnd(c.RowFilter(), filter)
	return c
}

func (c Context) WithIgnoreResiduals() Context {
	c.ignoreResiduals = true
	return c
}

func (c Context) WithCaseSensitive(caseSensitive bool) Context {
	c.caseSensitive = caseSensitive
	return c
}

func (c Context) WithColStats() Context {
	c.colStats = true
	return c
}

func (c Context) WithSelectedColumns(columns ...string) Context {
	c.selectedColumns = append([]string(nil), columns...)
	return c
}

func (c Context) WithPool(pool iterable.Pool) Context {
	c.pool = pool
	return c
}
