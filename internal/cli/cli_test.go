package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/parquet-go/parquet-go"

	metaerrors "github.com/arkilian/metatables/internal/errors"
)

const eventsSchema = `{"type":"struct","schema-id":0,"fields":[` +
	`{"id":1,"name":"id","required":true,"type":"long"},` +
	`{"id":2,"name":"category","required":false,"type":"string"}]}`

type testCLI struct {
	dataDir string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	color.NoColor = true
	return &testCLI{dataDir: t.TempDir()}
}

func (c *testCLI) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--data-dir", c.dataDir, "--env-file", filepath.Join(c.dataDir, "missing.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *testCLI) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func (c *testCLI) createEvents(t *testing.T) {
	t.Helper()
	c.mustRun(t, "table", "create", "db.events", "--schema", eventsSchema, "--property", "owner=ops")
	c.mustRun(t, "table", "append", "db.events", "--rows", `[{"id":1,"category":"a"},{"id":2}]`)
	c.mustRun(t, "table", "append", "db.events", "--rows", `[{"id":3,"category":"c"}]`)
}

func TestRootCommand_Version(t *testing.T) {
	root := NewRootCommand("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", got)
	}
}

func TestRootCommand_InvalidCommand(t *testing.T) {
	c := newTestCLI(t)
	if _, err := c.run(t, "invalid-command"); err == nil {
		t.Error("expected error for invalid command")
	}
}

func TestTableCommands(t *testing.T) {
	c := newTestCLI(t)
	c.createEvents(t)

	out := c.mustRun(t, "--json", "table", "list", "db")
	var list struct {
		Tables []string `json:"tables"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(list.Tables) != 1 || list.Tables[0] != "db.events" {
		t.Errorf("tables = %v, want [db.events]", list.Tables)
	}

	out = c.mustRun(t, "table", "show", "db.events")
	if !strings.Contains(out, "Snapshots:") || !strings.Contains(out, "id, category") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	_, err := c.run(t, "table", "create", "db.events", "--schema", eventsSchema)
	if got := metaerrors.GetCode(err); got != metaerrors.CodeTableAlreadyExists {
		t.Errorf("duplicate create code = %q, want %q", got, metaerrors.CodeTableAlreadyExists)
	}

	_, err = c.run(t, "table", "create", "db.other", "--schema", eventsSchema, "--property", "novalue")
	if got := metaerrors.GetCode(err); got != metaerrors.CodeInvalidValue {
		t.Errorf("bad property code = %q, want %q", got, metaerrors.CodeInvalidValue)
	}

	c.mustRun(t, "table", "drop", "db.events")
	_, err = c.run(t, "table", "show", "db.events")
	if got := metaerrors.GetCode(err); got != metaerrors.CodeTableNotFound {
		t.Errorf("show after drop code = %q, want %q", got, metaerrors.CodeTableNotFound)
	}
}

func TestPlanAllEntries(t *testing.T) {
	c := newTestCLI(t)
	c.createEvents(t)

	out := c.mustRun(t, "--json", "plan", "db.events.all_entries", "--filter", "status = 1")
	var plan struct {
		Table string `json:"table"`
		Tasks []struct {
			ManifestPath string `json:"manifest_path"`
			SpecID       int    `json:"partition_spec_id"`
			Residual     string `json:"residual"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode plan: %v\n%s", err, out)
	}
	if plan.Table != "db.events.all_entries" {
		t.Errorf("table = %q", plan.Table)
	}
	if len(plan.Tasks) != 2 {
		t.Fatalf("got %d tasks, want one per manifest (2)", len(plan.Tasks))
	}
	for _, task := range plan.Tasks {
		if task.SpecID != 0 || !strings.Contains(task.Residual, "status") {
			t.Errorf("unexpected task %+v", task)
		}
	}

	if _, err := c.run(t, "plan", "db.events.files"); metaerrors.GetCode(err) != metaerrors.CodeUnknownMetadataTable {
		t.Errorf("unknown metadata table error = %v", err)
	}
	if _, err := c.run(t, "plan", "db.events.all_entries", "--filter", "status ="); metaerrors.GetCode(err) != metaerrors.CodeParseError {
		t.Errorf("bad filter error = %v", err)
	}
}

func TestScanAllEntries(t *testing.T) {
	c := newTestCLI(t)
	c.createEvents(t)

	out := c.mustRun(t, "--json", "scan", "db.events.all_entries",
		"--select", "status,data_file.record_count",
		"--order-by", "data_file.record_count desc")
	var result struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode scan: %v\n%s", err, out)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(result.Rows))
	}
	if got := result.Rows[0]["data_file.record_count"]; got != float64(2) {
		t.Errorf("first record_count = %v, want 2", got)
	}

	out = c.mustRun(t, "scan", "db.events.all_entries", "--select", "data_file.record_count", "--limit", "1")
	if !strings.Contains(out, "data_file.record_count") || !strings.Contains(out, "(1 rows from 2 tasks") {
		t.Errorf("unexpected table output:\n%s", out)
	}

	if _, err := c.run(t, "scan", "db.events.all_entries", "--order-by", "status sideways"); metaerrors.GetCode(err) != metaerrors.CodeInvalidValue {
		t.Errorf("bad sort key error = %v", err)
	}
}

func TestExportParquet(t *testing.T) {
	c := newTestCLI(t)
	c.createEvents(t)

	path := filepath.Join(t.TempDir(), "entries.parquet")
	out := c.mustRun(t, "export", "db.events.all_entries", "-o", path)
	if !strings.Contains(out, "Wrote 2 rows") {
		t.Errorf("unexpected export output: %s", out)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if pf.NumRows() != 2 {
		t.Errorf("parquet rows = %d, want 2", pf.NumRows())
	}
	if _, ok := pf.Schema().Lookup("data_file.file_path"); !ok {
		t.Error("export is missing the flattened data_file.file_path column")
	}
}

func TestSchemaCommand(t *testing.T) {
	c := newTestCLI(t)
	c.createEvents(t)

	out := c.mustRun(t, "schema", "db.events.entries")
	for _, col := range []string{"status", "snapshot_id", "sequence_number", "file_sequence_number", "data_file.file_path"} {
		if !strings.Contains(out, col) {
			t.Errorf("schema output missing %s:\n%s", col, out)
		}
	}
}
