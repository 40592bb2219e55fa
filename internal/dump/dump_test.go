package dump

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func chunkOf(rows [][]float32) Chunk {
	c := Chunk{Rows: len(rows)}
	if len(rows) > 0 {
		c.Cols = len(rows[0])
	}
	for _, r := range rows {
		c.Data = append(c.Data, r...)
	}
	return c
}

func TestWriteAndStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hx_l0.arrow")
	in := []Chunk{
		chunkOf([][]float32{{1, 2}, {3, 4}, {5, 6}}),
		chunkOf([][]float32{{7, 8}}),
		chunkOf([][]float32{{9, 10}, {11, 12}}),
	}
	if err := WriteFile(path, in...); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	var got []Chunk
	for s.Next() {
		got = append(got, s.Chunk())
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}

	if len(got) != len(in) {
		t.Fatalf("got %d chunks, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i].Rows != in[i].Rows || got[i].Cols != in[i].Cols {
			t.Errorf("chunk %d shape = %dx%d, want %dx%d", i, got[i].Rows, got[i].Cols, in[i].Rows, in[i].Cols)
			continue
		}
		for j := range in[i].Data {
			if got[i].Data[j] != in[i].Data[j] {
				t.Errorf("chunk %d value %d = %v, want %v", i, j, got[i].Data[j], in[i].Data[j])
			}
		}
	}

	// Exhausted streams stay exhausted without error.
	if s.Next() {
		t.Error("Next after exhaustion returned true")
	}
	if s.Err() != nil {
		t.Errorf("Err after exhaustion = %v", s.Err())
	}
}

func TestChunkDataSurvivesNext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cx_l1.arrow")
	if err := WriteFile(path,
		chunkOf([][]float32{{1}}),
		chunkOf([][]float32{{2}}),
	); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	s.Next()
	first := s.Chunk()
	s.Next()
	if first.Data[0] != 1 {
		t.Errorf("first chunk value = %v after Next, want 1", first.Data[0])
	}
}

func TestEmptyStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hx_l0.arrow")
	if err := WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if s.Next() {
		t.Error("Next on empty stream returned true")
	}
	if s.Err() != nil {
		t.Errorf("Err on empty stream = %v", s.Err())
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.arrow")); err == nil {
		t.Error("expected error for missing file")
	}

	garbage := filepath.Join(dir, "garbage.arrow")
	if err := os.WriteFile(garbage, []byte("not an arrow stream"), 0644); err != nil {
		t.Fatalf("failed to write garbage: %v", err)
	}
	if _, err := Open(garbage); !errors.Is(err, ErrFormat) {
		t.Errorf("Open(garbage) error = %v, want ErrFormat", err)
	}
}

func TestAppendShapeMismatch(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "hx_l0.arrow"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer w.Close()

	if err := w.Append(Chunk{Rows: 2, Cols: 2, Data: []float32{1, 2, 3}}); err == nil {
		t.Error("expected error for inconsistent chunk shape")
	}
}

func TestStat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hx_l0.arrow")
	if err := WriteFile(path,
		chunkOf([][]float32{{1, 2, 3}, {4, 5, 6}}),
		chunkOf([][]float32{{7, 8, 9}}),
	); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	info, err := Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Chunks != 2 || info.Rows != 3 || info.Width != 3 {
		t.Errorf("Stat = %+v, want 2 chunks, 3 rows, width 3", info)
	}
	if info.Size <= 0 {
		t.Errorf("Stat size = %d, want > 0", info.Size)
	}
}

func TestStatWidthMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hx_l0.arrow")
	if err := WriteFile(path,
		chunkOf([][]float32{{1, 2}}),
		chunkOf([][]float32{{1, 2, 3}}),
	); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := Stat(path); !errors.Is(err, ErrFormat) {
		t.Errorf("Stat error = %v, want ErrFormat", err)
	}
}
