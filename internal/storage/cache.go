package storage

import (
	"container/list"
	"context"
	"strings"
	"sync"
)

// CachingIO is a FileIO that keeps the contents of immutable metadata files
// (manifests and manifest lists) in an LRU cache bounded by total size.
// Other locations pass straight through.
type CachingIO struct {
	FileIO

	suffixes []string

	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	hits     int64
	misses   int64

	// items maps location to a list element whose value is *cacheEntry.
	items map[string]*list.Element
	order *list.List // front = most recently used
}

type cacheEntry struct {
	location string
	data     []byte
}

// NewCachingIO wraps io. Reads of locations ending in one of suffixes are
// cached; maxBytes <= 0 means 64 MB.
func NewCachingIO(io FileIO, maxBytes int64, suffixes ...string) *CachingIO {
	if maxBytes <= 0 {
		maxBytes = 64 * 1024 * 1024
	}
	return &CachingIO{
		FileIO:   io,
		suffixes: suffixes,
		maxBytes: maxBytes,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *CachingIO) cacheable(location string) bool {
	for _, s := range c.suffixes {
		if strings.HasSuffix(location, s) {
			return true
		}
	}
	return false
}

// Read returns cached contents when present and otherwise reads through,
// caching the result. Callers must not modify the returned slice.
func (c *CachingIO) Read(ctx context.Context, location string) ([]byte, error) {
	if !c.cacheable(location) {
		return c.FileIO.Read(ctx, location)
	}
	if data, ok := c.get(location); ok {
		return data, nil
	}
	data, err := c.FileIO.Read(ctx, location)
	if err != nil {
		return nil, err
	}
	c.put(location, data)
	return data, nil
}

// Write invalidates any cached contents before writing.
func (c *CachingIO) Write(ctx context.Context, location string, data []byte) error {
	c.invalidate(location)
	return c.FileIO.Write(ctx, location, data)
}

// Delete invalidates any cached contents before deleting.
func (c *CachingIO) Delete(ctx context.Context, location string) error {
	c.invalidate(location)
	return c.FileIO.Delete(ctx, location)
}

func (c *CachingIO) get(location string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[location]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).data, true
}

// put records contents and evicts LRU entries while over the limit. The
// newest entry is always kept.
func (c *CachingIO) put(location string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[location]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes += int64(len(data)) - int64(len(old.data))
		old.data = data
		c.order.MoveToFront(elem)
	} else {
		elem := c.order.PushFront(&cacheEntry{location: location, data: data})
		c.items[location] = elem
		c.curBytes += int64(len(data))
	}

	for c.curBytes > c.maxBytes && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
	}
}

func (c *CachingIO) invalidate(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[location]; ok {
		c.removeLocked(elem)
	}
}

// removeLocked removes an element. Caller must hold c.mu.
func (c *CachingIO) removeLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, entry.location)
	c.curBytes -= int64(len(entry.data))
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int
	Bytes   int64
	Hits    int64
	Misses  int64
}

func (c *CachingIO) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.items), Bytes: c.curBytes, Hits: c.hits, Misses: c.misses}
}

// Clear drops every cached entry.
func (c *CachingIO) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.order.Len() > 0 {
		c.removeLocked(c.order.Back())
	}
}
