// Package server coordinates graceful shutdown of the metadata-table
// service: signal handling, in-flight request draining and ordered cleanup.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ShutdownManager drains in-flight requests and closes registered resources
// once, on the first signal or explicit Shutdown call.
type ShutdownManager struct {
	shutdownTimeout time.Duration
	drainTimeout    time.Duration
	logger          log.Logger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	shuttingDown atomic.Bool
	inFlight     atomic.Int64

	// Closed in reverse order of registration
	closers   []io.Closer
	closersMu sync.Mutex
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// ShutdownTimeout bounds the whole shutdown (default: 30s)
	ShutdownTimeout time.Duration

	// DrainTimeout bounds the wait for in-flight requests (default: 15s)
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// NewShutdownManager creates a shutdown manager.
func NewShutdownManager(config ShutdownConfig, logger log.Logger) *ShutdownManager {
	defaults := DefaultShutdownConfig()
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &ShutdownManager{
		shutdownTimeout: config.ShutdownTimeout,
		drainTimeout:    config.DrainTimeout,
		logger:          logger,
		shutdownCh:      make(chan struct{}),
	}
}

// RegisterCloser adds a resource to close on shutdown.
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// ListenForSignals blocks until SIGTERM, SIGINT, ctx cancellation or an
// explicit Shutdown, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.shutdownCh:
		return nil
	}
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// every registered resource. Only the first call does anything.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var shutdownErr error

	sm.shutdownOnce.Do(func() {
		level.Info(sm.logger).Log("msg", "shutting down", "reason", reason, "in_flight", sm.inFlight.Load())
		sm.shuttingDown.Store(true)
		close(sm.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := sm.drainInFlight(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain failed: %w", err))
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close failed: %w", err))
			}
		}

		shutdownErr = errors.Join(errs...)
		if shutdownErr != nil {
			level.Error(sm.logger).Log("msg", "shutdown finished with errors", "err", shutdownErr)
		} else {
			level.Info(sm.logger).Log("msg", "shutdown complete")
		}
	})

	return shutdownErr
}

func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-drainCtx.Done():
			if remaining := sm.inFlight.Load(); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest counts a request as in flight. It returns false once
// shutdown has begun.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.shuttingDown.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// UntrackRequest ends a request counted by TrackRequest.
func (sm *ShutdownManager) UntrackRequest() {
	sm.inFlight.Add(-1)
}

// IsShuttingDown reports whether shutdown has begun.
func (sm *ShutdownManager) IsShuttingDown() bool { return sm.shuttingDown.Load() }

// InFlightCount returns the number of in-flight requests.
func (sm *ShutdownManager) InFlightCount() int64 { return sm.inFlight.Load() }

// ShutdownCh is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} { return sm.shutdownCh }

// HTTPServerCloser shuts an http.Server down gracefully when closed.
func HTTPServerCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// ShutdownMiddleware tracks in-flight requests and rejects new ones during
// shutdown.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				http.Error(w, "Service Unavailable - Shutting Down", http.StatusServiceUnavailable)
				return
			}
			defer sm.UntrackRequest()
			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
