package storage

import (
	"context"
	"testing"
)

func newCachingIO(t *testing.T, maxBytes int64) (*CachingIO, *LocalStorage) {
	t.Helper()
	local, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewCachingIO(local, maxBytes, ".mtm", ".mtl"), local
}

func TestCachingIO_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	cache, local := newCachingIO(t, 1024*1024)

	if err := local.Write(ctx, "m/a.mtm", make([]byte, 100)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		data, err := cache.Read(ctx, "m/a.mtm")
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if len(data) != 100 {
			t.Fatalf("expected 100 bytes, got %d", len(data))
		}
	}

	stats := cache.Stats()
	if stats.Entries != 1 || stats.Misses != 1 || stats.Hits != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCachingIO_LRUEviction(t *testing.T) {
	ctx := context.Background()
	// Holds two 100-byte manifests.
	cache, local := newCachingIO(t, 250)

	for _, name := range []string{"a", "b", "c"} {
		if err := local.Write(ctx, "m/"+name+".mtm", make([]byte, 100)); err != nil {
			t.Fatal(err)
		}
		if _, err := cache.Read(ctx, "m/"+name+".mtm"); err != nil {
			t.Fatal(err)
		}
	}

	if cache.Stats().Entries != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Stats().Entries)
	}
	if cache.Stats().Bytes != 200 {
		t.Fatalf("expected 200 bytes, got %d", cache.Stats().Bytes)
	}

	// "a" was evicted, so reading it again is a miss.
	before := cache.Stats().Misses
	if _, err := cache.Read(ctx, "m/a.mtm"); err != nil {
		t.Fatal(err)
	}
	if cache.Stats().Misses != before+1 {
		t.Fatal("expected a miss for evicted entry")
	}
}

func TestCachingIO_WriteInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCachingIO(t, 1024)

	if err := cache.Write(ctx, "m/x.mtl", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Read(ctx, "m/x.mtl"); err != nil {
		t.Fatal(err)
	}
	if err := cache.Write(ctx, "m/x.mtl", []byte("three")); err != nil {
		t.Fatal(err)
	}
	data, err := cache.Read(ctx, "m/x.mtl")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "three" {
		t.Fatalf("expected fresh contents, got %q", data)
	}

	if err := cache.Delete(ctx, "m/x.mtl"); err != nil {
		t.Fatal(err)
	}
	if cache.Stats().Entries != 0 {
		t.Fatalf("expected 0 entries after delete, got %d", cache.Stats().Entries)
	}
}

func TestCachingIO_PassesThroughOtherFiles(t *testing.T) {
	ctx := context.Background()
	cache, local := newCachingIO(t, 1024)

	if err := local.Write(ctx, "v1.metadata.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Read(ctx, "v1.metadata.json"); err != nil {
		t.Fatal(err)
	}
	if cache.Stats().Entries != 0 || cache.Stats().Misses != 0 {
		t.Fatalf("metadata files must not be cached: %+v", cache.Stats())
	}

	cache.Clear()
	if _, err := cache.Read(ctx, "missing.mtm"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
