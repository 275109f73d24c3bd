package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/arkilian/metatables/internal/catalog"
	"github.com/arkilian/metatables/internal/config"
	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/export"
	"github.com/arkilian/metatables/internal/metatable"
	"github.com/arkilian/metatables/internal/observability"
	"github.com/arkilian/metatables/internal/query/executor"
	"github.com/arkilian/metatables/internal/query/parser"
	"github.com/arkilian/metatables/internal/query/scan"
	"github.com/arkilian/metatables/internal/table"
)

// ScanRequest refines a metadata-table scan. Unset fields fall back to the
// server's scan defaults.
type ScanRequest struct {
	Filter          string   `json:"filter,omitempty"`
	Columns         []string `json:"columns,omitempty"`
	SnapshotID      *int64   `json:"snapshot_id,omitempty"`
	CaseSensitive   *bool    `json:"case_sensitive,omitempty"`
	IgnoreResiduals *bool    `json:"ignore_residuals,omitempty"`
	ColumnStats     *bool    `json:"column_stats,omitempty"`

	// Limit and OrderBy apply to /scan only
	Limit   int64    `json:"limit,omitempty"`
	OrderBy []string `json:"order_by,omitempty"`
}

// TaskInfo describes one planned scan task.
type TaskInfo struct {
	ManifestPath    string `json:"manifest_path"`
	ManifestLength  int64  `json:"manifest_length"`
	SpecID          int    `json:"partition_spec_id"`
	Content         string `json:"content"`
	AddedSnapshotID int64  `json:"added_snapshot_id"`
	Residual        string `json:"residual"`
}

// PlanResponse lists the tasks of a planned scan.
type PlanResponse struct {
	Table     string     `json:"table"`
	Schema    string     `json:"schema"`
	Tasks     []TaskInfo `json:"tasks"`
	RequestID string     `json:"request_id"`
}

// ScanResponse holds the rows of an executed scan.
type ScanResponse struct {
	Table     string           `json:"table"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Stats     ScanStats        `json:"stats"`
	RequestID string           `json:"request_id"`
}

// ScanStats contains execution statistics.
type ScanStats struct {
	TasksPlanned    int   `json:"tasks_planned"`
	RowsScanned     int64 `json:"rows_scanned"`
	RowsReturned    int   `json:"rows_returned"`
	Truncated       bool  `json:"truncated"`
	PlanningTimeMs  int64 `json:"planning_time_ms"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// ScanHandler serves plan and scan requests against metadata tables.
type ScanHandler struct {
	catalog  catalog.Catalog
	executor *executor.TaskExecutor
	defaults config.ScanConfig
	metrics  *observability.Metrics
	stats    *observability.FilterStats
	logger   log.Logger
}

// NewScanHandler creates a scan handler. metrics and stats may be nil.
func NewScanHandler(cat catalog.Catalog, exec *executor.TaskExecutor, defaults config.ScanConfig,
	metrics *observability.Metrics, stats *observability.FilterStats, logger log.Logger) *ScanHandler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &ScanHandler{
		catalog:  cat,
		executor: exec,
		defaults: defaults,
		metrics:  metrics,
		stats:    stats,
		logger:   logger,
	}
}

// ServePlan handles POST /v1/tables/{ident}/{metatable}/plan.
func (h *ScanHandler) ServePlan(w http.ResponseWriter, r *http.Request) {
	mt, s, _, err := h.buildScan(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	projection, err := s.Projection()
	if err != nil {
		writeError(w, r, err)
		return
	}
	schemaJSON, err := table.SchemaToJSON(projection)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tasks, err := h.executor.Plan(r.Context(), s)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := PlanResponse{
		Table:     mt.Name(),
		Schema:    schemaJSON,
		Tasks:     make([]TaskInfo, 0, len(tasks)),
		RequestID: GetRequestID(r.Context()),
	}
	for _, task := range tasks {
		mf := task.Manifest()
		resp.Tasks = append(resp.Tasks, TaskInfo{
			ManifestPath:    mf.Path,
			ManifestLength:  mf.Length,
			SpecID:          mf.SpecID,
			Content:         mf.Content.String(),
			AddedSnapshotID: mf.AddedSnapshotID,
			Residual:        task.Residual().ResidualFor(nil).String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeScan handles POST /v1/tables/{ident}/{metatable}/scan.
func (h *ScanHandler) ServeScan(w http.ResponseWriter, r *http.Request) {
	mt, s, req, err := h.buildScan(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := executor.Options{Limit: req.Limit}
	for _, key := range req.OrderBy {
		sk, err := executor.ParseSortKey(key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		opts.OrderBy = append(opts.OrderBy, sk)
	}

	result, err := h.executor.Execute(r.Context(), s, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RowsReturned.WithLabelValues(s.TableType()).Add(float64(len(result.Rows)))
	}
	if result.Stats.Truncated {
		level.Warn(h.logger).Log("msg", "scan result truncated", "table", mt.Name(), "rows", len(result.Rows))
	}

	columns := result.Schema.LeafNames()
	if columns == nil {
		columns = []string{}
	}
	writeJSON(w, http.StatusOK, ScanResponse{
		Table:   mt.Name(),
		Columns: columns,
		Rows:    export.JSONRows(result.Schema, result.Rows),
		Stats: ScanStats{
			TasksPlanned:    result.Stats.TasksPlanned,
			RowsScanned:     result.Stats.RowsScanned,
			RowsReturned:    result.Stats.RowsReturned,
			Truncated:       result.Stats.Truncated,
			PlanningTimeMs:  result.Stats.PlanningTimeMs,
			ExecutionTimeMs: result.Stats.ExecutionTimeMs,
		},
		RequestID: GetRequestID(r.Context()),
	})
}

// buildScan loads the metadata table named by the path and refines a new
// scan with the request body.
func (h *ScanHandler) buildScan(r *http.Request) (metatable.Table, scan.TableScan, ScanRequest, error) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, nil, req, metaerrors.NewValidationError(metaerrors.CodeInvalidValue,
			fmt.Sprintf("invalid request body: %v", err))
	}

	name := r.PathValue("ident") + "." + r.PathValue("metatable")
	opts := []metatable.Option{metatable.WithLogger(h.logger)}
	if h.metrics != nil {
		opts = append(opts, metatable.WithObserver(h.metrics))
	}
	mt, err := h.catalog.LoadMetadataTable(r.Context(), name, opts...)
	if err != nil {
		return nil, nil, req, err
	}

	s, err := mt.NewScan()
	if err != nil {
		return nil, nil, req, err
	}

	caseSensitive := h.defaults.CaseSensitive
	if req.CaseSensitive != nil {
		caseSensitive = *req.CaseSensitive
	}
	s = s.CaseSensitive(caseSensitive)

	if pick(req.IgnoreResiduals, h.defaults.IgnoreResiduals) {
		s = s.IgnoreResiduals()
	}
	if pick(req.ColumnStats, h.defaults.ColumnStats) {
		s = s.IncludeColumnStats()
	}
	if req.SnapshotID != nil {
		s = s.UseSnapshot(*req.SnapshotID)
	}
	if req.Filter != "" {
		filter, err := parser.Parse(req.Filter)
		if err != nil {
			return nil, nil, req, err
		}
		s = s.Filter(filter)
		if h.stats != nil {
			h.stats.RecordFilter(s.TableType(), filter)
		}
	}
	if len(req.Columns) > 0 {
		s = s.Select(req.Columns...)
		if h.stats != nil {
			h.stats.RecordProjection(s.TableType(), req.Columns)
		}
	}
	return mt, s, req, nil
}

func pick(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
