package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/arkilian/metatables/internal/iterable"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/pkg/types"
)

// Result holds the rows of an executed scan, shaped by Schema.
type Result struct {
	Schema  *types.Schema
	Columns []string
	Rows    []types.Row
	Stats   ExecutionStats
}

// ExecutionStats contains scan execution metrics.
type ExecutionStats struct {
	TasksPlanned    int
	RowsScanned     int64
	RowsReturned    int
	Truncated       bool
	PlanningTimeMs  int64
	ExecutionTimeMs int64
}

// Options controls result shaping. Limit <= 0 means no limit.
type Options struct {
	Limit   int64
	OrderBy []SortKey
}

// Config holds configuration for the executor.
type Config struct {
	// MaxMemoryBytes bounds the rows held by one execution (default: 256MB).
	// Collection stops and the result is marked truncated past it.
	MaxMemoryBytes int64
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{MaxMemoryBytes: 256 * 1024 * 1024}
}

// TaskExecutor plans scans and runs their tasks concurrently on a shared
// pool, streaming rows into a memory-bounded collector.
type TaskExecutor struct {
	pool           *Pool
	maxMemoryBytes int64
	logger         log.Logger
}

// NewTaskExecutor creates an executor running tasks on pool. The executor
// does not own the pool.
func NewTaskExecutor(pool *Pool, config Config, logger log.Logger) *TaskExecutor {
	if config.MaxMemoryBytes <= 0 {
		config.MaxMemoryBytes = DefaultConfig().MaxMemoryBytes
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &TaskExecutor{pool: pool, maxMemoryBytes: config.MaxMemoryBytes, logger: logger}
}

// Plan returns the tasks of s, planning on the executor's pool unless the
// scan already has one.
func (e *TaskExecutor) Plan(ctx context.Context, s scan.TableScan) ([]scan.FileScanTask, error) {
	if s.Context().Pool() == nil {
		s = s.PlanWith(e.pool)
	}
	planned, err := s.PlanFiles(ctx)
	if err != nil {
		return nil, err
	}
	return iterable.Collect(ctx, planned)
}

// Execute plans s, reads every task and returns the rows projected onto the
// scan's selected columns.
func (e *TaskExecutor) Execute(ctx context.Context, s scan.TableScan, opts Options) (*Result, error) {
	start := time.Now()

	projection, err := s.Projection()
	if err != nil {
		return nil, err
	}

	tasks, err := e.Plan(ctx, s)
	if err != nil {
		return nil, err
	}
	planningTime := time.Since(start)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowChan := make(chan types.Row, e.pool.Size()*64)
	done := make(chan struct{})

	var (
		wg          sync.WaitGroup
		rowsScanned atomic.Int64
		errOnce     sync.Once
		firstErr    error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	go func() {
		defer close(rowChan)
		for _, task := range tasks {
			if isClosed(done) {
				break
			}
			wg.Add(1)
			err := e.pool.Submit(ctx, func() {
				defer wg.Done()
				n, err := streamTaskRows(ctx, task, projection, rowChan, done)
				rowsScanned.Add(n)
				if err != nil {
					fail(err)
				}
			})
			if err != nil {
				wg.Done()
				fail(err)
				break
			}
		}
		wg.Wait()
	}()

	c := &collector{schema: projection, orderBy: opts.OrderBy, limit: opts.Limit, maxMemoryBytes: e.maxMemoryBytes}
	got := c.collect(rowChan, done)
	if firstErr != nil {
		return nil, firstErr
	}

	rows, err := c.finish(got.rows)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Schema:  projection,
		Columns: columnNames(projection),
		Rows:    rows,
		Stats: ExecutionStats{
			TasksPlanned:    len(tasks),
			RowsScanned:     rowsScanned.Load(),
			RowsReturned:    len(rows),
			Truncated:       got.truncated,
			PlanningTimeMs:  planningTime.Milliseconds(),
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		},
	}
	level.Debug(e.logger).Log("msg", "executed scan", "table_type", s.TableType(),
		"tasks", result.Stats.TasksPlanned, "rows_scanned", result.Stats.RowsScanned,
		"rows_returned", result.Stats.RowsReturned, "duration_ms", result.Stats.ExecutionTimeMs)
	return result, nil
}

// streamTaskRows reads one task and sends its rows, projected, to rowChan.
// It returns the number of rows read.
func streamTaskRows(ctx context.Context, task scan.FileScanTask, projection *types.Schema, rowChan chan<- types.Row, done <-chan struct{}) (int64, error) {
	rows, err := task.Rows(ctx)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	projector := types.NewProjector(task.Schema().AsStruct(), projection.AsStruct())
	it := rows.Iterator(ctx)
	var count int64
	for it.Next() {
		count++
		select {
		case rowChan <- projector.Project(it.Value()):
		case <-done:
			return count, nil
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
	return count, it.Err()
}

func isClosed(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func columnNames(schema *types.Schema) []string {
	names := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	return names
}
