package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	sqlite3 "github.com/mattn/go-sqlite3"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/metatable"
	"github.com/arkilian/metatables/internal/storage"
	"github.com/arkilian/metatables/internal/table"
	"github.com/arkilian/metatables/pkg/types"
)

// Catalog manages the registry of tables.
type Catalog interface {
	// CreateTable writes the first metadata version and registers the table.
	CreateTable(ctx context.Context, ident Identifier, schema *types.Schema, spec table.PartitionSpec, props map[string]string) (*table.Table, error)

	// LoadTable loads a table's current metadata.
	LoadTable(ctx context.Context, ident Identifier) (*table.Table, error)

	// ListTables returns the tables of a namespace, sorted by name.
	ListTables(ctx context.Context, namespace string) ([]Identifier, error)

	// DropTable unregisters a table. Its files are left in storage.
	DropTable(ctx context.Context, ident Identifier) error

	// LoadMetadataTable resolves "namespace.table.kind", e.g. "db.events.all_entries".
	LoadMetadataTable(ctx context.Context, name string, opts ...metatable.Option) (metatable.Table, error)

	// Close closes the catalog database connection.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	io     storage.FileIO
	logger log.Logger
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewCatalog opens or creates the catalog database at dbPath. Table files
// are read and written through io.
func NewCatalog(dbPath string, io storage.FileIO, logger log.Logger) (*SQLiteCatalog, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath, io: io, logger: logger}

	// Schema must exist before the read-only pool opens the file.
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	c.readDB = readDB

	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// IO returns the file I/O tables are read and written with.
func (c *SQLiteCatalog) IO() storage.FileIO { return c.io }

func (c *SQLiteCatalog) CreateTable(ctx context.Context, ident Identifier, schema *types.Schema, spec table.PartitionSpec, props map[string]string) (*table.Table, error) {
	location := ident.location()
	meta, err := table.NewTableMetadata(location, schema, spec, props)
	if err != nil {
		return nil, metaerrors.NewValidationError(metaerrors.CodeInvalidSchema, err.Error())
	}

	metadataLocation := table.MetadataLocation(location, table.NewMetadataFileName(0))
	if err := table.WriteMetadata(ctx, c.io, metadataLocation, meta); err != nil {
		return nil, metaerrors.NewStorageError(metaerrors.CodeWriteFailed, "failed to write metadata", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO tables (identifier, namespace, name, metadata_location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ident.String(), ident.Namespace, ident.Name, metadataLocation, now, now)
	if err != nil {
		_ = c.io.Delete(ctx, metadataLocation)
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, metaerrors.NewCatalogError(metaerrors.CodeTableAlreadyExists,
				fmt.Sprintf("table already exists: %s", ident), err)
		}
		return nil, fmt.Errorf("catalog: failed to register table: %w", err)
	}

	level.Info(c.logger).Log("msg", "created table", "table", ident, "metadata", metadataLocation)
	ops := &tableOperations{catalog: c, ident: ident, location: location, current: meta, metadataLocation: metadataLocation}
	return table.New(ident.String(), ops), nil
}

func (c *SQLiteCatalog) LoadTable(ctx context.Context, ident Identifier) (*table.Table, error) {
	ops := &tableOperations{catalog: c, ident: ident, location: ident.location()}
	if _, err := ops.Refresh(ctx); err != nil {
		return nil, err
	}
	return table.New(ident.String(), ops), nil
}

func (c *SQLiteCatalog) ListTables(ctx context.Context, namespace string) ([]Identifier, error) {
	rows, err := c.readDB.QueryContext(ctx,
		"SELECT namespace, name FROM tables WHERE namespace = ? ORDER BY name", namespace)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list tables: %w", err)
	}
	defer rows.Close()

	var out []Identifier
	for rows.Next() {
		var ident Identifier
		if err := rows.Scan(&ident.Namespace, &ident.Name); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan table row: %w", err)
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) DropTable(ctx context.Context, ident Identifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM tables WHERE identifier = ?", ident.String())
	if err != nil {
		return fmt.Errorf("catalog: failed to drop table: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tableNotFound(ident)
	}
	level.Info(c.logger).Log("msg", "dropped table", "table", ident)
	return nil
}

func (c *SQLiteCatalog) LoadMetadataTable(ctx context.Context, name string, opts ...metatable.Option) (metatable.Table, error) {
	ident, kind, err := ParseMetadataTableName(name)
	if err != nil {
		return nil, err
	}
	tbl, err := c.LoadTable(ctx, ident)
	if err != nil {
		return nil, err
	}
	return metatable.ByName(tbl, kind, opts...)
}

// metadataLocation returns the current metadata file of a table.
func (c *SQLiteCatalog) metadataLocation(ctx context.Context, ident Identifier) (string, error) {
	var location string
	err := c.readDB.QueryRowContext(ctx,
		"SELECT metadata_location FROM tables WHERE identifier = ?", ident.String()).Scan(&location)
	if err == sql.ErrNoRows {
		return "", tableNotFound(ident)
	}
	if err != nil {
		return "", fmt.Errorf("catalog: failed to load table %s: %w", ident, err)
	}
	return location, nil
}

// swapMetadataLocation points the table at next if it still points at
// expected.
func (c *SQLiteCatalog) swapMetadataLocation(ctx context.Context, ident Identifier, expected, next string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE tables
		SET metadata_location = ?, previous_metadata_location = ?, updated_at = ?
		WHERE identifier = ? AND metadata_location = ?`,
		next, expected, time.Now().Unix(), ident.String(), expected)
	if err != nil {
		return fmt.Errorf("catalog: failed to commit table %s: %w", ident, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return metaerrors.NewCatalogError(metaerrors.CodeCommitConflict,
			fmt.Sprintf("table %s was modified concurrently", ident), nil).
			WithDetails(map[string]interface{}{"table": ident.String(), "expected": expected})
	}
	return nil
}

// Close closes the catalog database connections.
func (c *SQLiteCatalog) Close() error {
	var errs []error
	if c.readDB != nil {
		errs = append(errs, c.readDB.Close())
	}
	errs = append(errs, c.db.Close())
	return errors.Join(errs...)
}

func tableNotFound(ident Identifier) error {
	return metaerrors.NewCatalogError(metaerrors.CodeTableNotFound,
		fmt.Sprintf("table not found: %s", ident), nil).
		WithDetails(map[string]interface{}{"table": ident.String()})
}

// tableOperations commits metadata through the catalog.
type tableOperations struct {
	catalog  *SQLiteCatalog
	ident    Identifier
	location string

	mu               sync.Mutex
	current          *table.TableMetadata
	metadataLocation string
}

func (o *tableOperations) Current() *table.TableMetadata {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *tableOperations) Refresh(ctx context.Context) (*table.TableMetadata, error) {
	location, err := o.catalog.metadataLocation(ctx, o.ident)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if location == o.metadataLocation && o.current != nil {
		defer o.mu.Unlock()
		return o.current, nil
	}
	o.mu.Unlock()

	meta, err := table.ReadMetadata(ctx, o.catalog.io, location)
	if err != nil {
		return nil, metaerrors.NewMetadataError(metaerrors.CodeCorruptMetadata,
			fmt.Sprintf("failed to read metadata of %s", o.ident), err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = meta
	o.metadataLocation = location
	return meta, nil
}

func (o *tableOperations) Commit(ctx context.Context, base, next *table.TableMetadata) error {
	o.mu.Lock()
	expected := o.metadataLocation
	stale := base != o.current
	o.mu.Unlock()
	if stale {
		return metaerrors.NewCatalogError(metaerrors.CodeCommitConflict,
			"table metadata changed since base was read", nil)
	}

	location := table.MetadataLocation(o.location, table.NewMetadataFileName(metadataVersion(expected)+1))
	if err := table.WriteMetadata(ctx, o.catalog.io, location, next); err != nil {
		return metaerrors.NewStorageError(metaerrors.CodeWriteFailed, "failed to write metadata", err)
	}

	if err := o.catalog.swapMetadataLocation(ctx, o.ident, expected, location); err != nil {
		_ = o.catalog.io.Delete(ctx, location)
		return err
	}

	o.mu.Lock()
	o.current = next
	o.metadataLocation = location
	o.mu.Unlock()
	level.Debug(o.catalog.logger).Log("msg", "committed table metadata", "table", o.ident, "metadata", location)
	return nil
}

func (o *tableOperations) IO() storage.FileIO { return o.catalog.io }

func (o *tableOperations) MetadataFileLocation(name string) string {
	return table.MetadataLocation(o.location, name)
}

// metadataVersion parses the version prefix of a metadata file name, or -1.
func metadataVersion(location string) int {
	name := path.Base(location)
	i := strings.Index(name, "-")
	if i <= 0 {
		return -1
	}
	v, err := strconv.Atoi(name[:i])
	if err != nil {
		return -1
	}
	return v
}
