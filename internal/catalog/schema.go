package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

-- One row per activation stream found in an activations directory
CREATE TABLE IF NOT EXISTS dumps (
    dir TEXT NOT NULL,
    identity TEXT NOT NULL,   -- compact form, e.g. 'hx1'
    layer INTEGER NOT NULL,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    chunks INTEGER NOT NULL,
    row_count INTEGER NOT NULL,
    width INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    scanned_at TEXT NOT NULL,
    PRIMARY KEY (dir, identity)
);

-- Every exported train/test split
CREATE TABLE IF NOT EXISTS splits (
    id TEXT PRIMARY KEY,
    dir TEXT NOT NULL,
    identity TEXT NOT NULL,
    subset_size INTEGER NOT NULL,  -- -1 for all rows
    ratio REAL NOT NULL,
    train_rows INTEGER NOT NULL,
    test_rows INTEGER NOT NULL,
    seed INTEGER,
    output_dir TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_splits_identity ON splits(dir, identity);
`

// InitSchema creates the schema on a fresh database and checks the version
// of an existing one.
func InitSchema(ctx context.Context, db *sql.DB) error {
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		// schema_version doesn't exist yet
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if version > SchemaVersion {
		return fmt.Errorf("catalog schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}
