package catalog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/metatable"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

func testSchema() *types.Schema {
	return types.NewSchema(0,
		types.Required(1, "id", types.LongType),
		types.Optional(2, "category", types.StringType),
	)
}

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	dir := t.TempDir()
	io, err := storage.NewLocalStorage(filepath.Join(dir, "warehouse"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	cat, err := NewCatalog(filepath.Join(dir, "catalog.db"), io, nil)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func mustIdent(t *testing.T, s string) Identifier {
	t.Helper()
	ident, err := ParseIdentifier(s)
	if err != nil {
		t.Fatalf("ParseIdentifier(%q) failed: %v", s, err)
	}
	return ident
}

func appendFile(t *testing.T, tbl *table.Table, path string) {
	t.Helper()
	_, err := tbl.NewAppend().AppendFiles(table.DataFile{
		Content:     table.FileContentData,
		FilePath:    path,
		FileFormat:  "PARQUET",
		RecordCount: 10,
	}).Commit(context.Background())
	if err != nil {
		t.Fatalf("append %s failed: %v", path, err)
	}
}

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		input   string
		want    Identifier
		wantErr bool
	}{
		{input: "db.events", want: Identifier{Namespace: "db", Name: "events"}},
		{input: "a.b.events", want: Identifier{Namespace: "a.b", Name: "events"}},
		{input: "events", wantErr: true},
		{input: ".events", wantErr: true},
		{input: "db.", wantErr: true},
		{input: "db..events", wantErr: true},
		{input: "db/x.events", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseIdentifier(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseIdentifier(%q) expected error", tt.input)
			} else if metaerrors.GetCode(err) != metaerrors.CodeInvalidIdentifier {
				t.Errorf("ParseIdentifier(%q) code = %s", tt.input, metaerrors.GetCode(err))
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIdentifier(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseIdentifier(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
		if got.String() != tt.input {
			t.Errorf("String() = %q, want %q", got.String(), tt.input)
		}
	}
}

func TestParseMetadataTableName(t *testing.T) {
	ident, kind, err := ParseMetadataTableName("db.events.ALL_ENTRIES")
	if err != nil {
		t.Fatalf("ParseMetadataTableName failed: %v", err)
	}
	if ident != (Identifier{Namespace: "db", Name: "events"}) || kind != metatable.AllEntries {
		t.Errorf("got %+v %s", ident, kind)
	}

	if _, _, err := ParseMetadataTableName("db.events.files"); metaerrors.GetCode(err) != metaerrors.CodeUnknownMetadataTable {
		t.Errorf("expected UNKNOWN_METADATA_TABLE, got %v", err)
	}
	if _, _, err := ParseMetadataTableName("events.entries"); err == nil {
		t.Error("expected error for a name without namespace")
	}
}

func TestCatalog_CreateAndLoad(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	ident := mustIdent(t, "db.events")

	created, err := cat.CreateTable(ctx, ident, testSchema(), table.Unpartitioned(), map[string]string{"owner": "ops"})
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if created.Location() != "db/events" {
		t.Errorf("Location() = %q", created.Location())
	}

	_, err = cat.CreateTable(ctx, ident, testSchema(), table.Unpartitioned(), nil)
	if metaerrors.GetCode(err) != metaerrors.CodeTableAlreadyExists {
		t.Errorf("duplicate create: expected TABLE_ALREADY_EXISTS, got %v", err)
	}

	loaded, err := cat.LoadTable(ctx, ident)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if loaded.Name() != "db.events" {
		t.Errorf("Name() = %q", loaded.Name())
	}
	if loaded.Metadata().Properties["owner"] != "ops" {
		t.Errorf("properties not persisted: %v", loaded.Metadata().Properties)
	}
	if len(loaded.Schema().Fields()) != 2 {
		t.Errorf("schema fields = %d", len(loaded.Schema().Fields()))
	}

	_, err = cat.LoadTable(ctx, mustIdent(t, "db.missing"))
	if metaerrors.GetCode(err) != metaerrors.CodeTableNotFound {
		t.Errorf("expected TABLE_NOT_FOUND, got %v", err)
	}
}

func TestCatalog_ListAndDrop(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"db.b", "db.a", "other.c"} {
		if _, err := cat.CreateTable(ctx, mustIdent(t, name), testSchema(), table.Unpartitioned(), nil); err != nil {
			t.Fatalf("CreateTable(%s) failed: %v", name, err)
		}
	}

	idents, err := cat.ListTables(ctx, "db")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(idents) != 2 || idents[0].Name != "a" || idents[1].Name != "b" {
		t.Errorf("ListTables(db) = %v", idents)
	}

	if err := cat.DropTable(ctx, mustIdent(t, "db.a")); err != nil {
		t.Fatalf("DropTable failed: %v", err)
	}
	if err := cat.DropTable(ctx, mustIdent(t, "db.a")); metaerrors.GetCode(err) != metaerrors.CodeTableNotFound {
		t.Errorf("second drop: expected TABLE_NOT_FOUND, got %v", err)
	}

	idents, err = cat.ListTables(ctx, "db")
	if err != nil {
		t.Fatalf("ListTables failed: %v", err)
	}
	if len(idents) != 1 {
		t.Errorf("expected 1 table after drop, got %d", len(idents))
	}
}

func TestCatalog_CommitAdvancesMetadataVersion(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	ident := mustIdent(t, "db.events")

	tbl, err := cat.CreateTable(ctx, ident, testSchema(), table.Unpartitioned(), nil)
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	appendFile(t, tbl, "db/events/data/a.parquet")
	appendFile(t, tbl, "db/events/data/b.parquet")

	location, err := cat.metadataLocation(ctx, ident)
	if err != nil {
		t.Fatalf("metadataLocation failed: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(location), "00002-") {
		t.Errorf("expected third metadata version, got %s", location)
	}

	reloaded, err := cat.LoadTable(ctx, ident)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	if len(reloaded.Snapshots()) != 2 {
		t.Errorf("expected 2 snapshots, got %d", len(reloaded.Snapshots()))
	}
}

func TestCatalog_ConcurrentWriterRetriesOnConflict(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	ident := mustIdent(t, "db.events")

	if _, err := cat.CreateTable(ctx, ident, testSchema(), table.Unpartitioned(), nil); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	first, err := cat.LoadTable(ctx, ident)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	second, err := cat.LoadTable(ctx, ident)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}

	appendFile(t, first, "db/events/data/a.parquet")
	// second still holds the original metadata; its commit conflicts once
	// and succeeds after refreshing.
	appendFile(t, second, "db/events/data/b.parquet")

	if len(second.Snapshots()) != 2 {
		t.Errorf("expected 2 snapshots after retry, got %d", len(second.Snapshots()))
	}
}

func TestTableOperations_StaleCommitConflicts(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	ident := mustIdent(t, "db.events")

	tbl, err := cat.CreateTable(ctx, ident, testSchema(), table.Unpartitioned(), nil)
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	other, err := cat.LoadTable(ctx, ident)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	appendFile(t, tbl, "db/events/data/a.parquet")

	ops := other.Operations()
	base := ops.Current()
	err = ops.Commit(ctx, base, base)
	if metaerrors.GetCode(err) != metaerrors.CodeCommitConflict {
		t.Fatalf("expected COMMIT_CONFLICT, got %v", err)
	}
	if !metaerrors.IsRetryable(err) {
		t.Error("commit conflict should be retryable")
	}

	files, err := cat.IO().List(ctx, "db/events/metadata")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var versions int
	for _, f := range files {
		if strings.HasSuffix(f, ".metadata.json") {
			versions++
		}
	}
	if versions != 2 {
		t.Errorf("expected 2 metadata files after the rejected commit, got %d", versions)
	}
}

func TestCatalog_LoadMetadataTable(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	tbl, err := cat.CreateTable(ctx, mustIdent(t, "db.events"), testSchema(), table.Unpartitioned(), nil)
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	appendFile(t, tbl, "db/events/data/a.parquet")
	appendFile(t, tbl, "db/events/data/b.parquet")

	mt, err := cat.LoadMetadataTable(ctx, "db.events.all_entries")
	if err != nil {
		t.Fatalf("LoadMetadataTable failed: %v", err)
	}
	if mt.Name() != "db.events.all_entries" {
		t.Errorf("Name() = %q", mt.Name())
	}
	if mt.Type() != metatable.AllEntries {
		t.Errorf("Type() = %s", mt.Type())
	}

	s, err := mt.NewScan()
	if err != nil {
		t.Fatalf("NewScan failed: %v", err)
	}
	planned, err := s.PlanFiles(ctx)
	if err != nil {
		t.Fatalf("PlanFiles failed: %v", err)
	}
	defer planned.Close()

	var tasks int
	it := planned.Iterator(ctx)
	for it.Next() {
		tasks++
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if tasks != 2 {
		t.Errorf("expected one task per manifest (2), got %d", tasks)
	}

	if _, err := cat.LoadMetadataTable(ctx, "db.missing.entries"); metaerrors.GetCode(err) != metaerrors.CodeTableNotFound {
		t.Errorf("expected TABLE_NOT_FOUND, got %v", err)
	}
}
