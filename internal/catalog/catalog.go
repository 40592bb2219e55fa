// Package catalog records which activation dumps exist and which splits were
// exported from them, in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/actprobe/internal/activations"

	_ "modernc.org/sqlite" // SQLite driver
)

// timeFormat keeps a fixed number of fractional digits so that stored
// timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DumpInfo describes one scanned activation stream.
type DumpInfo struct {
	Dir       string
	Identity  activations.Identity
	Path      string
	Chunks    int
	Rows      int
	Width     int
	SizeBytes int64
	ScannedAt time.Time
}

// SplitRecord describes one exported train/test split.
type SplitRecord struct {
	ID         string
	Dir        string
	Identity   activations.Identity
	SubsetSize int
	Ratio      float64
	TrainRows  int
	TestRows   int
	Seed       *uint64
	OutputDir  string
	CreatedAt  time.Time
}

// Catalog is a SQLite-backed record of dumps and splits.
type Catalog struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open opens (creating if needed) the catalog database at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// RecordDump inserts or replaces the entry for d.Dir and d.Identity.
func (c *Catalog) RecordDump(ctx context.Context, d DumpInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.ScannedAt.IsZero() {
		d.ScannedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO dumps
			(dir, identity, layer, name, path, chunks, row_count, width, size_bytes, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Dir, d.Identity.String(), d.Identity.Layer, d.Identity.Name, d.Path,
		d.Chunks, d.Rows, d.Width, d.SizeBytes, d.ScannedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record dump: %w", err)
	}
	return nil
}

// ListDumps returns the dumps recorded for dir, or for every directory when
// dir is empty, ordered by directory, layer and name.
func (c *Catalog) ListDumps(ctx context.Context, dir string) ([]DumpInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT dir, layer, name, path, chunks, row_count, width, size_bytes, scanned_at
		FROM dumps
		WHERE ? = '' OR dir = ?
		ORDER BY dir, layer, name`, dir, dir)
	if err != nil {
		return nil, fmt.Errorf("list dumps: %w", err)
	}
	defer rows.Close()

	var out []DumpInfo
	for rows.Next() {
		var (
			d  DumpInfo
			ts string
		)
		if err := rows.Scan(&d.Dir, &d.Identity.Layer, &d.Identity.Name, &d.Path,
			&d.Chunks, &d.Rows, &d.Width, &d.SizeBytes, &ts); err != nil {
			return nil, fmt.Errorf("scan dump: %w", err)
		}
		if d.ScannedAt, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("parse scan time: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordSplit stores s.
func (c *Catalog) RecordSplit(ctx context.Context, s SplitRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	var seed sql.NullInt64
	if s.Seed != nil {
		seed = sql.NullInt64{Int64: int64(*s.Seed), Valid: true}
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO splits
			(id, dir, identity, subset_size, ratio, train_rows, test_rows, seed, output_dir, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Dir, s.Identity.String(), s.SubsetSize, s.Ratio, s.TrainRows, s.TestRows,
		seed, s.OutputDir, s.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("record split: %w", err)
	}
	return nil
}

// ListSplits returns recorded splits, newest first.
func (c *Catalog) ListSplits(ctx context.Context) ([]SplitRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, dir, identity, subset_size, ratio, train_rows, test_rows, seed, output_dir, created_at
		FROM splits
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list splits: %w", err)
	}
	defer rows.Close()

	var out []SplitRecord
	for rows.Next() {
		var (
			s        SplitRecord
			identity string
			seed     sql.NullInt64
			ts       string
		)
		if err := rows.Scan(&s.ID, &s.Dir, &identity, &s.SubsetSize, &s.Ratio,
			&s.TrainRows, &s.TestRows, &seed, &s.OutputDir, &ts); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		if s.Identity, err = activations.ParseIdentity(identity); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		if seed.Valid {
			v := uint64(seed.Int64)
			s.Seed = &v
		}
		if s.CreatedAt, err = time.Parse(timeFormat, ts); err != nil {
			return nil, fmt.Errorf("parse split time: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSplits removes the records with the given ids and returns how many
// were removed. Unknown ids are ignored.
func (c *Catalog) DeleteSplits(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete splits: %w", err)
	}
	defer tx.Rollback()

	var n int64
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `DELETE FROM splits WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("delete split %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("delete split %s: %w", id, err)
		}
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete splits: %w", err)
	}
	return int(n), nil
}
