// Package app provides the application lifecycle for the metadata-table service.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/arkilian/metatables/internal/api/http"
	"github.com/arkilian/metatables/internal/catalog"
	"github.com/arkilian/metatables/internal/config"
	"github.com/arkilian/metatables/internal/observability"
	"github.com/arkilian/metatables/internal/query/executor"
	"github.com/arkilian/metatables/internal/server"
	"github.com/arkilian/metatables/internal/storage"
)

// filterStatsWindow is how long filter and projection usage is remembered.
const filterStatsWindow = 24 * time.Hour

// App owns the shared resources of the service: storage, catalog, the
// planning pool and the HTTP server.
type App struct {
	cfg    *config.Config
	logger log.Logger

	// Shared resources
	io       storage.FileIO
	catalog  *catalog.SQLiteCatalog
	pool     *executor.Pool
	executor *executor.TaskExecutor
	registry *prometheus.Registry
	metrics  *observability.Metrics
	stats    *observability.FilterStats
	shutdown *server.ShutdownManager

	httpServer *http.Server
	listener   net.Listener

	// Lifecycle
	mu      sync.Mutex
	open    bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration. Shared resources are
// created by Open or Start.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Open initializes storage, the catalog and the planning pool without
// starting the HTTP server. CLI commands use it directly.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open {
		return nil
	}
	if err := a.initSharedResources(ctx); err != nil {
		a.cleanupLocked()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}
	a.open = true
	return nil
}

// Start opens shared resources and serves the API until Stop.
func (a *App) Start(ctx context.Context) error {
	if err := a.Open(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.startHTTPServer(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start http server: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pruneFilterStats(ctx)
	}()

	level.Info(a.logger).Log("msg", "metatables started", "addr", a.Addr())
	return nil
}

// initSharedResources initializes storage, the catalog, the pool and
// observability. Callers hold a.mu.
func (a *App) initSharedResources(ctx context.Context) error {
	var (
		base storage.FileIO
		err  error
	)
	switch a.cfg.Storage.Type {
	case "local":
		base, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		base, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.io = base
	if a.cfg.Storage.ManifestCacheBytes > 0 {
		a.io = storage.NewCachingIO(base, a.cfg.Storage.ManifestCacheBytes, ".manifest", ".manifest-list")
	}
	level.Info(a.logger).Log("msg", "storage initialized", "type", a.cfg.Storage.Type,
		"path", a.cfg.Storage.Path, "bucket", a.cfg.Storage.S3.Bucket,
		"manifest_cache_bytes", a.cfg.Storage.ManifestCacheBytes)

	a.catalog, err = catalog.NewCatalog(a.cfg.Catalog.Path, a.io, log.With(a.logger, "component", "catalog"))
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	level.Info(a.logger).Log("msg", "catalog initialized", "path", a.cfg.Catalog.Path)

	a.pool = executor.NewPool(a.cfg.Scan.WorkerPoolSize)
	a.executor = executor.NewTaskExecutor(a.pool,
		executor.Config{MaxMemoryBytes: a.cfg.Scan.MaxResultBytes},
		log.With(a.logger, "component", "executor"))

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = observability.NewMetrics(a.registry)
	a.stats = observability.NewFilterStats(filterStatsWindow)

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig(), log.With(a.logger, "component", "shutdown"))
	return nil
}

func (a *App) startHTTPServer() error {
	routerCfg := httpapi.RouterConfig{
		Catalog:     a.catalog,
		Executor:    a.executor,
		Scan:        a.cfg.Scan,
		Logger:      log.With(a.logger, "component", "http"),
		Metrics:     a.metrics,
		FilterStats: a.stats,
	}
	if a.cfg.Metrics.Enabled {
		routerCfg.Gatherer = a.registry
		routerCfg.MetricsPath = a.cfg.Metrics.Path
	}

	handler := server.ShutdownMiddleware(a.shutdown)(httpapi.NewRouter(routerCfg))
	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	listener, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.listener = listener
	a.shutdown.RegisterCloser(server.HTTPServerCloser(a.httpServer, 10*time.Second))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			level.Error(a.logger).Log("msg", "http server error", "err", err)
		}
	}()
	return nil
}

func (a *App) pruneFilterStats(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stats.Prune()
		}
	}
}

// Stop gracefully stops the server and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	running := a.running
	a.running = false
	a.mu.Unlock()

	if !running {
		a.cleanup()
		return nil
	}

	level.Info(a.logger).Log("msg", "initiating graceful shutdown")
	if a.cancel != nil {
		a.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// In-flight requests drain before the server and shared resources close.
	err := a.shutdown.Shutdown(shutdownCtx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		level.Warn(a.logger).Log("msg", "shutdown timeout, some goroutines may not have finished")
	}

	a.cleanup()
	level.Info(a.logger).Log("msg", "metatables stopped")
	return err
}

// cleanup releases shared resources.
func (a *App) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()
}

func (a *App) cleanupLocked() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			level.Warn(a.logger).Log("msg", "catalog close failed", "err", err)
		}
		a.catalog = nil
	}
	a.open = false
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends.
func (a *App) WaitForShutdown(ctx context.Context) error {
	a.mu.Lock()
	sm := a.shutdown
	a.mu.Unlock()
	if sm == nil {
		return nil
	}
	err := sm.ListenForSignals(ctx)
	if stopErr := a.Stop(context.Background()); err == nil {
		err = stopErr
	}
	return err
}

// Addr returns the address the HTTP server listens on, or the configured
// address before Start.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.cfg.HTTP.Addr
}

// Catalog returns the table catalog, or nil before Open.
func (a *App) Catalog() catalog.Catalog {
	if a.catalog == nil {
		return nil
	}
	return a.catalog
}

// Executor returns the scan executor. Valid after Open.
func (a *App) Executor() *executor.TaskExecutor { return a.executor }

// Metrics returns the planning metrics. Valid after Open.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// Logger returns the application logger.
func (a *App) Logger() log.Logger { return a.logger }

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }
