// Package executor runs scan planning and scan tasks on a shared, bounded
// worker pool.
package executor

import (
	"context"
	"sync"
	"sync/atomic"

	metaerrors "github.com/arkilian/metatables/internal/errors"
)

// Pool runs submitted functions with at most Size running at once. A pool
// is shared by every scan that plans or executes with it; scans never close
// it. Its creator does.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	active    atomic.Int64
}

// PoolStats is a point-in-time view of pool usage.
type PoolStats struct {
	Size      int
	Active    int64
	Submitted int64
}

// NewPool creates a pool running at most size functions concurrently.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Size returns the maximum number of concurrently running functions.
func (p *Pool) Size() int { return cap(p.sem) }

// Submit waits for a free slot and runs fn on its own goroutine. It returns
// ctx's error if the context ends first, and INTERNAL/POOL_CLOSED after
// Close.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return metaerrors.New(metaerrors.ErrCategoryInternal, metaerrors.CodePoolClosed, "worker pool is closed")
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		p.wg.Done()
		return err
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}

	p.submitted.Add(1)
	p.active.Add(1)
	go func() {
		defer func() {
			p.active.Add(-1)
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Close rejects new submissions and waits for running functions to return.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns current pool usage.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Size:      p.Size(),
		Active:    p.active.Load(),
		Submitted: p.submitted.Load(),
	}
}
