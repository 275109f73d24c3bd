// Package iterable provides lazy, closeable sequences.
package iterable

import (
	"context"
	"errors"
)

// Iterator walks a sequence once.
//
//	it := seq.Iterator(ctx)
//	for it.Next() {
//		use(it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[T any] interface {
	Next() bool
	Value() T
	Err() error
}

// CloseableIterable is a sequence that may hold resources, such as running
// workers or open files, until it is closed. Close is safe to call more than
// once.
type CloseableIterable[T any] interface {
	Iterator(ctx context.Context) Iterator[T]
	Close() error
}

// Materialized is an in-memory sequence. It can be iterated any number of
// times and Close does nothing.
type Materialized[T any] struct {
	items []T
}

// Of returns a materialized sequence of items.
func Of[T any](items ...T) *Materialized[T] {
	return &Materialized[T]{items: items}
}

// Items returns the underlying items.
func (m *Materialized[T]) Items() []T { return m.items }

// Len returns the number of items.
func (m *Materialized[T]) Len() int { return len(m.items) }

func (m *Materialized[T]) Iterator(context.Context) Iterator[T] {
	return &sliceIterator[T]{items: m.items, pos: -1}
}

func (m *Materialized[T]) Close() error { return nil }

type sliceIterator[T any] struct {
	items []T
	pos   int
}

func (it *sliceIterator[T]) Next() bool {
	if it.pos+1 >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator[T]) Value() T { return it.items[it.pos] }

func (it *sliceIterator[T]) Err() error { return nil }

// errIterator yields nothing and reports err.
type errIterator[T any] struct {
	err error
}

func (it errIterator[T]) Next() bool { return false }

func (it errIterator[T]) Value() T {
	var zero T
	return zero
}

func (it errIterator[T]) Err() error { return it.err }

// Failed returns an iterator that yields nothing and reports err.
func Failed[T any](err error) Iterator[T] { return errIterator[T]{err: err} }

type transformed[S, T any] struct {
	source CloseableIterable[S]
	fn     func(S) (T, error)
}

// Transform lazily maps every item of source through fn. The first error
// from fn ends iteration. Closing the result closes source.
func Transform[S, T any](source CloseableIterable[S], fn func(S) (T, error)) CloseableIterable[T] {
	return &transformed[S, T]{source: source, fn: fn}
}

func (t *transformed[S, T]) Iterator(ctx context.Context) Iterator[T] {
	return &transformIterator[S, T]{source: t.source.Iterator(ctx), fn: t.fn}
}

func (t *transformed[S, T]) Close() error { return t.source.Close() }

type transformIterator[S, T any] struct {
	source Iterator[S]
	fn     func(S) (T, error)
	cur    T
	err    error
}

func (it *transformIterator[S, T]) Next() bool {
	if it.err != nil || !it.source.Next() {
		return false
	}
	v, err := it.fn(it.source.Value())
	if err != nil {
		it.err = err
		return false
	}
	it.cur = v
	return true
}

func (it *transformIterator[S, T]) Value() T { return it.cur }

func (it *transformIterator[S, T]) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.source.Err()
}

type filtered[T any] struct {
	source CloseableIterable[T]
	keep   func(T) bool
}

// Filter lazily keeps the items of source for which keep returns true.
func Filter[T any](source CloseableIterable[T], keep func(T) bool) CloseableIterable[T] {
	return &filtered[T]{source: source, keep: keep}
}

func (f *filtered[T]) Iterator(ctx context.Context) Iterator[T] {
	return &filterIterator[T]{Iterator: f.source.Iterator(ctx), keep: f.keep}
}

func (f *filtered[T]) Close() error { return f.source.Close() }

type filterIterator[T any] struct {
	Iterator[T]
	keep func(T) bool
}

func (it *filterIterator[T]) Next() bool {
	for it.Iterator.Next() {
		if it.keep(it.Iterator.Value()) {
			return true
		}
	}
	return false
}

// Collect iterates seq to the end, closes it and returns its items.
func Collect[T any](ctx context.Context, seq CloseableIterable[T]) ([]T, error) {
	var items []T
	it := seq.Iterator(ctx)
	for it.Next() {
		items = append(items, it.Value())
	}
	iterErr := it.Err()
	closeErr := seq.Close()
	switch {
	case iterErr != nil && closeErr != nil:
		return nil, errors.Join(iterErr, closeErr)
	case iterErr != nil:
		return nil, iterErr
	case closeErr != nil:
		return nil, closeErr
	}
	return items, nil
}
