package http

import (
	"net/http"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkilian/metatables/internal/catalog"
	"github.com/arkilian/metatables/internal/config"
	"github.com/arkilian/metatables/internal/observability"
	"github.com/arkilian/metatables/internal/query/executor"
)

// RouterConfig holds the dependencies of the API routes.
type RouterConfig struct {
	Catalog  catalog.Catalog
	Executor *executor.TaskExecutor
	Scan     config.ScanConfig
	Logger   log.Logger

	// Optional
	Metrics     *observability.Metrics
	FilterStats *observability.FilterStats
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

// NewRouter returns the API handler with the default middleware applied.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	tables := NewTableHandler(cfg.Catalog, logger)
	metaTables := NewMetadataTableHandler(cfg.Catalog)
	scans := NewScanHandler(cfg.Catalog, cfg.Executor, cfg.Scan, cfg.Metrics, cfg.FilterStats, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tables", tables.ServeCreate)
	mux.HandleFunc("GET /v1/tables/{ident}", tables.ServeGet)
	mux.HandleFunc("POST /v1/tables/{ident}/append", tables.ServeAppend)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/tables", tables.ServeList)
	mux.HandleFunc("GET /v1/tables/{ident}/{metatable}/schema", metaTables.ServeSchema)
	mux.HandleFunc("POST /v1/tables/{ident}/{metatable}/plan", scans.ServePlan)
	mux.HandleFunc("POST /v1/tables/{ident}/{metatable}/scan", scans.ServeScan)

	if cfg.FilterStats != nil {
		mux.HandleFunc("GET /v1/stats/filters", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"predicates":  cfg.FilterStats.TopPredicates(20),
				"projections": cfg.FilterStats.TopProjections(20),
			})
		})
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Gatherer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return DefaultMiddleware(logger)(mux)
}
