// Package catalog maps table identifiers to their current metadata file in a
// SQLite database and commits new metadata versions with compare-and-swap.
package catalog

// CreateTablesTableSQL creates the table registry. metadata_location points
// at the current metadata file; previous_metadata_location at the one it
// replaced.
const CreateTablesTableSQL = `
CREATE TABLE IF NOT EXISTS tables (
    identifier TEXT PRIMARY KEY,
    namespace TEXT NOT NULL,
    name TEXT NOT NULL,
    metadata_location TEXT NOT NULL,
    previous_metadata_location TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateTablesIndexesSQL creates indexes for namespace listing.
var CreateTablesIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_tables_namespace ON tables(namespace, name)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateTablesTableSQL}
	return append(stmts, CreateTablesIndexesSQL...)
}
