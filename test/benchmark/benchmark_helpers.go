package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/metatables/internal/catalog"
	"github.com/arkilian/metatables/internal/config"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// getBenchmarkStorage returns the file IO benchmarks write to. It honours
// METATABLES_STORAGE_TYPE=s3 from .env or the environment; S3 runs write
// under "bench/<benchName>/<timestamp>" and are not cleaned up.
func getBenchmarkStorage(b *testing.B, benchName string) storage.FileIO {
	b.Helper()
	// .env lives at the project root, two levels up from test/benchmark
	if err := config.LoadDotEnv("../../.env"); err != nil {
		b.Fatal(err)
	}
	cfg := config.DefaultConfig()
	config.LoadFromEnv(cfg)

	if cfg.Storage.Type == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			b.Fatal("METATABLES_S3_BUCKET is required for s3 benchmarks")
		}
		s3Cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.Storage.S3.UsePathStyle
		s3Cfg.Prefix = fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())

		st, err := storage.NewS3Storage(context.Background(), cfg.Storage.S3.Bucket, s3Cfg)
		if err != nil {
			b.Fatalf("Failed to initialize S3 storage: %v", err)
		}
		b.Logf("Running benchmark against S3 bucket %s prefix %s", cfg.Storage.S3.Bucket, s3Cfg.Prefix)
		return st
	}

	st, err := storage.NewLocalStorage(filepath.Join(b.TempDir(), "warehouse"))
	if err != nil {
		b.Fatal(err)
	}
	return st
}

// benchTable creates a table with one snapshot per append, each adding
// filesPerSnapshot single-row data files in a new manifest.
func benchTable(b *testing.B, io storage.FileIO, snapshots, filesPerSnapshot int) (*catalog.SQLiteCatalog, *table.Table) {
	b.Helper()
	ctx := context.Background()

	cat, err := catalog.NewCatalog(filepath.Join(b.TempDir(), "catalog.db"), io, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { cat.Close() })

	ident, err := catalog.ParseIdentifier("bench.events")
	if err != nil {
		b.Fatal(err)
	}
	schema := types.NewSchema(0,
		types.Required(1, "id", types.LongType),
		types.Optional(2, "kind", types.StringType),
	)
	spec := table.PartitionSpec{SpecID: 0, Fields: []table.PartitionField{
		{SourceID: 2, FieldID: table.PartitionFieldIDStart, Name: "kind", Transform: "identity"},
	}}
	tbl, err := cat.CreateTable(ctx, ident, schema, spec, nil)
	if err != nil {
		b.Fatal(err)
	}

	id := 0
	for s := 0; s < snapshots; s++ {
		rows := make([]map[string]any, filesPerSnapshot)
		for f := range rows {
			rows[f] = map[string]any{"id": id, "kind": fmt.Sprintf("k%d", f)}
			id++
		}
		files, err := tbl.NewDataWriter().Write(ctx, rows)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := tbl.NewAppend().AppendFiles(files...).Commit(ctx); err != nil {
			b.Fatal(err)
		}
	}
	return cat, tbl
}

func envInt(key string, fallback int) int {
	var v int
	if _, err := fmt.Sscanf(os.Getenv(key), "%d", &v); err != nil || v <= 0 {
		return fallback
	}
	return v
}
