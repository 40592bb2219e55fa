package catalog

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/actprobe/internal/activations"

	_ "modernc.org/sqlite"
)

func openTest(t *testing.T) (*Catalog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, path
}

func TestRecordAndListDumps(t *testing.T) {
	c, _ := openTest(t)
	ctx := context.Background()

	dumps := []DumpInfo{
		{Dir: "/a", Identity: activations.Identity{Layer: 1, Name: "hx"}, Path: "/a/hx_l1.arrow", Chunks: 3, Rows: 8, Width: 2, SizeBytes: 512},
		{Dir: "/a", Identity: activations.Identity{Layer: 0, Name: "cx"}, Path: "/a/cx_l0.arrow", Chunks: 3, Rows: 8, Width: 2, SizeBytes: 500},
		{Dir: "/b", Identity: activations.Identity{Layer: 0, Name: "hx"}, Path: "/b/hx_l0.arrow", Chunks: 1, Rows: 2, Width: 4, SizeBytes: 128},
	}
	for _, d := range dumps {
		if err := c.RecordDump(ctx, d); err != nil {
			t.Fatalf("RecordDump failed: %v", err)
		}
	}

	got, err := c.ListDumps(ctx, "/a")
	if err != nil {
		t.Fatalf("ListDumps failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListDumps(/a) returned %d dumps, want 2", len(got))
	}
	if got[0].Identity.String() != "cx0" || got[1].Identity.String() != "hx1" {
		t.Errorf("ListDumps order = %s, %s", got[0].Identity, got[1].Identity)
	}
	if got[1].Rows != 8 || got[1].Width != 2 || got[1].SizeBytes != 512 {
		t.Errorf("ListDumps entry = %+v", got[1])
	}
	if got[0].ScannedAt.IsZero() {
		t.Error("expected ScannedAt to be set")
	}

	all, err := c.ListDumps(ctx, "")
	if err != nil {
		t.Fatalf("ListDumps failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListDumps(\"\") returned %d dumps, want 3", len(all))
	}
}

func TestRecordDumpReplaces(t *testing.T) {
	c, _ := openTest(t)
	ctx := context.Background()
	d := DumpInfo{Dir: "/a", Identity: activations.Identity{Layer: 1, Name: "hx"}, Path: "/a/hx_l1.arrow", Rows: 8, Width: 2}

	if err := c.RecordDump(ctx, d); err != nil {
		t.Fatalf("RecordDump failed: %v", err)
	}
	d.Rows = 10
	if err := c.RecordDump(ctx, d); err != nil {
		t.Fatalf("RecordDump failed: %v", err)
	}

	got, err := c.ListDumps(ctx, "/a")
	if err != nil {
		t.Fatalf("ListDumps failed: %v", err)
	}
	if len(got) != 1 || got[0].Rows != 10 {
		t.Errorf("ListDumps = %+v, want one entry with 10 rows", got)
	}
}

func TestRecordAndListSplits(t *testing.T) {
	c, _ := openTest(t)
	ctx := context.Background()
	seed := uint64(42)
	now := time.Now()

	splits := []SplitRecord{
		{ID: "old", Dir: "/a", Identity: activations.Identity{Layer: 0, Name: "hx"}, SubsetSize: -1, Ratio: 0.9, TrainRows: 7, TestRows: 1, OutputDir: "/out/old", CreatedAt: now.Add(-time.Hour)},
		{ID: "new", Dir: "/a", Identity: activations.Identity{Layer: 1, Name: "cx"}, SubsetSize: 4, Ratio: 0.5, TrainRows: 2, TestRows: 2, Seed: &seed, OutputDir: "/out/new", CreatedAt: now},
	}
	for _, s := range splits {
		if err := c.RecordSplit(ctx, s); err != nil {
			t.Fatalf("RecordSplit failed: %v", err)
		}
	}

	got, err := c.ListSplits(ctx)
	if err != nil {
		t.Fatalf("ListSplits failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSplits returned %d, want 2", len(got))
	}
	if got[0].ID != "new" || got[1].ID != "old" {
		t.Errorf("ListSplits order = %s, %s; want new, old", got[0].ID, got[1].ID)
	}
	if got[0].Seed == nil || *got[0].Seed != 42 {
		t.Errorf("seed = %v, want 42", got[0].Seed)
	}
	if got[1].Seed != nil {
		t.Errorf("seed = %v, want nil", *got[1].Seed)
	}
	if got[0].Identity != (activations.Identity{Layer: 1, Name: "cx"}) {
		t.Errorf("identity = %v", got[0].Identity)
	}

	if err := c.RecordSplit(ctx, splits[0]); err == nil {
		t.Error("expected error for duplicate split id")
	}
}

func TestOpenExisting(t *testing.T) {
	c, path := openTest(t)
	ctx := context.Background()
	if err := c.RecordDump(ctx, DumpInfo{Dir: "/a", Identity: activations.Identity{Layer: 0, Name: "hx"}}); err != nil {
		t.Fatalf("RecordDump failed: %v", err)
	}
	c.Close()

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.ListDumps(ctx, "")
	if err != nil {
		t.Fatalf("ListDumps failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("ListDumps after reopen = %d entries, want 1", len(got))
	}
}

func TestInitSchemaRejectsNewerVersion(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "future.db"))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, SchemaVersion+1); err != nil {
		t.Fatalf("insert version failed: %v", err)
	}
	if err := InitSchema(ctx, db); err == nil {
		t.Error("expected error for newer schema version")
	}
}

func TestDeleteSplits(t *testing.T) {
	c, _ := openTest(t)
	ctx := context.Background()
	id := activations.Identity{Layer: 0, Name: "hx"}
	for _, sid := range []string{"a", "b", "c"} {
		if err := c.RecordSplit(ctx, SplitRecord{ID: sid, Dir: "/a", Identity: id, OutputDir: "/out/" + sid}); err != nil {
			t.Fatalf("RecordSplit failed: %v", err)
		}
	}

	n, err := c.DeleteSplits(ctx, "a", "c", "missing")
	if err != nil {
		t.Fatalf("DeleteSplits failed: %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteSplits removed %d, want 2", n)
	}

	got, err := c.ListSplits(ctx)
	if err != nil {
		t.Fatalf("ListSplits failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("remaining splits = %+v, want only b", got)
	}

	if n, err := c.DeleteSplits(ctx); err != nil || n != 0 {
		t.Errorf("DeleteSplits() = %d, %v; want 0, nil", n, err)
	}
}
