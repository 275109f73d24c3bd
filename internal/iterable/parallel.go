package iterable

import (
	"context"
	"errors"
	"sync"
)

// Pool runs functions on a bounded set of goroutines.
type Pool interface {
	// Submit waits for a free slot and runs fn. It fails when ctx ends first.
	Submit(ctx context.Context, fn func()) error
	Size() int
}

// ErrAlreadyIterated is reported by a second Iterator call on a Parallel.
var ErrAlreadyIterated = errors.New("iterable: parallel iterable can only be iterated once")

// Parallel drains several sources concurrently on a worker pool and yields
// their items through one stream in no particular order. The first source
// error stops the stream; Err returns it as-is.
//
// Close must be called. It cancels outstanding work, waits for every
// submitted task to return and closes every source.
type Parallel[T any] struct {
	pool    Pool
	sources []CloseableIterable[T]
	buffer  int

	mu       sync.Mutex
	started  bool
	err      error
	cancel   context.CancelFunc
	finished chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewParallel creates a parallel iterable over sources. With a nil pool the
// sources are drained one after another on a single goroutine.
func NewParallel[T any](pool Pool, sources []CloseableIterable[T]) *Parallel[T] {
	buffer := len(sources)
	if pool != nil {
		buffer = pool.Size() * 16
	}
	return &Parallel[T]{
		pool:     pool,
		sources:  sources,
		buffer:   buffer,
		finished: make(chan struct{}),
	}
}

// Iterator starts the workers. It may be called once.
func (p *Parallel[T]) Iterator(ctx context.Context) Iterator[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return Failed[T](ErrAlreadyIterated)
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	out := make(chan T, p.buffer)
	go p.dispatch(ctx, out)
	return &parallelIterator[T]{parent: p, out: out}
}

func (p *Parallel[T]) dispatch(ctx context.Context, out chan<- T) {
	defer close(p.finished)
	defer close(out)

	if p.pool == nil {
		for _, src := range p.sources {
			if err := ctx.Err(); err != nil {
				p.fail(err)
				return
			}
			p.drain(ctx, src, out)
		}
		return
	}

	var wg sync.WaitGroup
	for _, src := range p.sources {
		wg.Add(1)
		err := p.pool.Submit(ctx, func() {
			defer wg.Done()
			p.drain(ctx, src, out)
		})
		if err != nil {
			wg.Done()
			p.fail(err)
			break
		}
	}
	wg.Wait()
}

func (p *Parallel[T]) drain(ctx context.Context, src CloseableIterable[T], out chan<- T) {
	it := src.Iterator(ctx)
	for it.Next() {
		select {
		case out <- it.Value():
		case <-ctx.Done():
			p.fail(ctx.Err())
			return
		}
	}
	if err := it.Err(); err != nil {
		p.fail(err)
	}
}

// fail records the first error and stops every worker.
func (p *Parallel[T]) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	cancel := p.cancel
	p.mu.Unlock()
	cancel()
}

func (p *Parallel[T]) failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close cancels outstanding work, waits for it and closes every source.
// Source close failures are joined.
func (p *Parallel[T]) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		started, cancel := p.started, p.cancel
		p.started = true // no iteration after close
		p.mu.Unlock()

		if started && cancel != nil {
			cancel()
			<-p.finished
		}

		var errs []error
		for _, src := range p.sources {
			if err := src.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

type parallelIterator[T any] struct {
	parent *Parallel[T]
	out    <-chan T
	cur    T
}

func (it *parallelIterator[T]) Next() bool {
	if it.parent.failure() != nil {
		return false
	}
	v, ok := <-it.out
	if !ok || it.parent.failure() != nil {
		return false
	}
	it.cur = v
	return true
}

func (it *parallelIterator[T]) Value() T { return it.cur }

func (it *parallelIterator[T]) Err() error { return it.parent.failure() }
