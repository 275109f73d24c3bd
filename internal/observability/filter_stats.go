package observability

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arkilian/metatables/internal/expr"
)

// FilterStats tracks which metadata-table columns scans filter and select
// on, so operators can see what planning requests look like.
type FilterStats struct {
	mu            sync.RWMutex
	predicateFreq map[string]*ColumnStats
	projectFreq   map[string]*ColumnStats
	window        time.Duration
}

// ColumnStats holds statistics for one column of one metadata table type.
type ColumnStats struct {
	TableType string
	Column    string
	Frequency int64
	LastSeen  time.Time
	Operators map[string]int // operator → count (e.g., "eq" → 5, "in" → 2)
}

// NewFilterStats creates a tracker whose entries expire after window.
func NewFilterStats(window time.Duration) *FilterStats {
	return &FilterStats{
		predicateFreq: make(map[string]*ColumnStats),
		projectFreq:   make(map[string]*ColumnStats),
		window:        window,
	}
}

// RecordFilter records every predicate of filter against tableType.
// Constants and boolean connectives are not recorded.
func (f *FilterStats) RecordFilter(tableType string, filter expr.Expression) {
	if filter == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.walk(tableType, filter, time.Now())
}

func (f *FilterStats) walk(tableType string, e expr.Expression, now time.Time) {
	switch n := e.(type) {
	case *expr.And:
		f.walk(tableType, n.Left, now)
		f.walk(tableType, n.Right, now)
	case *expr.Or:
		f.walk(tableType, n.Left, now)
		f.walk(tableType, n.Right, now)
	case *expr.Not:
		f.walk(tableType, n.Child, now)
	case *expr.Predicate:
		f.recordLocked(f.predicateFreq, tableType, n.Term, n.Operation.String(), now)
	case *expr.BoundPredicate:
		f.recordLocked(f.predicateFreq, tableType, n.Term, n.Operation.String(), now)
	}
}

// RecordProjection records the columns a scan selected.
func (f *FilterStats) RecordProjection(tableType string, columns []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for _, c := range columns {
		f.recordLocked(f.projectFreq, tableType, c, "", now)
	}
}

func (f *FilterStats) recordLocked(m map[string]*ColumnStats, tableType, column, op string, now time.Time) {
	column = strings.ToLower(column)
	key := tableType + "/" + column
	stats, exists := m[key]
	if !exists {
		stats = &ColumnStats{
			TableType: tableType,
			Column:    column,
			Operators: make(map[string]int),
		}
		m[key] = stats
	}

	stats.Frequency++
	stats.LastSeen = now
	if op != "" {
		stats.Operators[op]++
	}
}

// TopPredicates returns copies of the n most filtered columns, most
// frequent first.
func (f *FilterStats) TopPredicates(n int) []ColumnStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return topN(f.predicateFreq, n)
}

// TopProjections returns copies of the n most selected columns.
func (f *FilterStats) TopProjections(n int) []ColumnStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return topN(f.projectFreq, n)
}

func topN(m map[string]*ColumnStats, n int) []ColumnStats {
	if n <= 0 || len(m) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(m))
	for _, s := range m {
		cp := *s
		cp.Operators = make(map[string]int, len(s.Operators))
		for op, count := range s.Operators {
			cp.Operators[op] = count
		}
		stats = append(stats, cp)
	}

	// Ties break on name so results are stable.
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		if stats[i].TableType != stats[j].TableType {
			return stats[i].TableType < stats[j].TableType
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
// This should be called periodically (e.g., every 5 minutes).
func (f *FilterStats) Prune() {
	f.mu.Lock()
	defer f.mu.Unlock()

	threshold := time.Now().Add(-f.window)
	for _, m := range []map[string]*ColumnStats{f.predicateFreq, f.projectFreq} {
		for key, stats := range m {
			if stats.LastSeen.Before(threshold) {
				delete(m, key)
			}
		}
	}
}
