package observability

import (
	"sync"
	"testing"
	"time"

	"github.com/arkilian/metatables/internal/expr"
)

func TestRecordFilterConcurrent(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)
	filter := expr.NewAnd(
		expr.Equal("status", 1),
		expr.NewOr(expr.GreaterThan("data_file.record_count", 10), expr.In("snapshot_id", 1, 2)),
	)

	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				fs.RecordFilter("ALL_ENTRIES", filter)
			}
		}()
	}
	wg.Wait()

	top := fs.TopPredicates(10)
	if len(top) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(top))
	}
	expected := int64(numGoroutines * recordsPerGoroutine)
	for _, stat := range top {
		if stat.Frequency != expected {
			t.Errorf("expected frequency %d for %s, got %d", expected, stat.Column, stat.Frequency)
		}
	}
}

func TestTopPredicatesOrdering(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)

	for i := 0; i < 10; i++ {
		fs.RecordFilter("ALL_ENTRIES", expr.Equal("status", 1))
	}
	for i := 0; i < 5; i++ {
		fs.RecordFilter("ENTRIES", expr.Equal("status", 1))
	}
	for i := 0; i < 20; i++ {
		fs.RecordFilter("ALL_ENTRIES", expr.NewNot(expr.IsNull("data_file.file_path")))
	}

	top := fs.TopPredicates(3)
	if len(top) != 3 {
		t.Fatalf("expected 3 predicates, got %d", len(top))
	}
	if top[0].Column != "data_file.file_path" || top[0].Frequency != 20 {
		t.Errorf("expected data_file.file_path with frequency 20, got %s with %d", top[0].Column, top[0].Frequency)
	}
	if top[1].TableType != "ALL_ENTRIES" || top[1].Frequency != 10 {
		t.Errorf("expected ALL_ENTRIES status with frequency 10, got %s with %d", top[1].TableType, top[1].Frequency)
	}
	if top[2].TableType != "ENTRIES" || top[2].Frequency != 5 {
		t.Errorf("expected ENTRIES status with frequency 5, got %s with %d", top[2].TableType, top[2].Frequency)
	}
}

func TestRecordFilterTracksOperators(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)

	fs.RecordFilter("ALL_ENTRIES", expr.NewAnd(expr.Equal("Status", 0), expr.NotEqual("status", 2)))
	fs.RecordFilter("ALL_ENTRIES", expr.In("STATUS", 0, 1))
	fs.RecordFilter("ALL_ENTRIES", expr.AlwaysTrue())
	fs.RecordFilter("ALL_ENTRIES", nil)

	top := fs.TopPredicates(5)
	if len(top) != 1 {
		t.Fatalf("expected 1 column, got %d", len(top))
	}
	stat := top[0]
	if stat.Frequency != 3 {
		t.Errorf("expected frequency 3, got %d", stat.Frequency)
	}
	for op, want := range map[string]int{"eq": 1, "not_eq": 1, "in": 1} {
		if stat.Operators[op] != want {
			t.Errorf("expected %d %q operators, got %d", want, op, stat.Operators[op])
		}
	}
}

func TestRecordProjection(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)
	fs.RecordProjection("ENTRIES", []string{"status", "data_file.file_path"})
	fs.RecordProjection("ENTRIES", []string{"status"})

	top := fs.TopProjections(10)
	if len(top) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(top))
	}
	if top[0].Column != "status" || top[0].Frequency != 2 {
		t.Errorf("expected status with frequency 2, got %s with %d", top[0].Column, top[0].Frequency)
	}
	if len(fs.TopPredicates(10)) != 0 {
		t.Error("projections must not count as predicates")
	}
}

func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	fs := NewFilterStats(window)

	fs.RecordFilter("ENTRIES", expr.Equal("status", 1))
	fs.RecordProjection("ENTRIES", []string{"status"})
	if len(fs.TopPredicates(10)) != 1 {
		t.Fatal("expected 1 predicate before prune")
	}

	time.Sleep(window + 50*time.Millisecond)
	fs.Prune()

	if n := len(fs.TopPredicates(10)); n != 0 {
		t.Errorf("expected 0 predicates after prune, got %d", n)
	}
	if n := len(fs.TopProjections(10)); n != 0 {
		t.Errorf("expected 0 projections after prune, got %d", n)
	}
}

func TestTopPredicatesEmptyAndOversizedLimit(t *testing.T) {
	fs := NewFilterStats(1 * time.Hour)
	if top := fs.TopPredicates(10); len(top) != 0 {
		t.Errorf("expected 0 predicates, got %d", len(top))
	}

	fs.RecordFilter("ENTRIES", expr.NewOr(expr.Equal("a", 1), expr.Equal("b", 2)))
	if top := fs.TopPredicates(100); len(top) != 2 {
		t.Errorf("expected 2 predicates, got %d", len(top))
	}
	if top := fs.TopPredicates(0); len(top) != 0 {
		t.Errorf("expected 0 predicates for n=0, got %d", len(top))
	}
}
