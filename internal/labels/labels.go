// Package labels reads and writes the per-row label vector that accompanies
// an activation directory.
package labels

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/actprobe/internal/dump"
)

// Schema of a labels file.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "label", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// Load reads every label batch in path into one vector. A null label is an
// ErrFormat error.
func Load(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening labels: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading labels header: %w", err)
	}
	defer r.Release()

	if !r.Schema().Equal(Schema) {
		return nil, fmt.Errorf("unexpected labels schema: %s", r.Schema())
	}

	var out []int64
	for r.Next() {
		col := r.Record().Column(0).(*array.Int64)
		if n := col.NullN(); n != 0 {
			return nil, fmt.Errorf("%w: labels batch has %d null entries", dump.ErrFormat, n)
		}
		out = append(out, col.Int64Values()...)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}
	if out == nil {
		out = []int64{}
	}
	return out, nil
}

// Save writes labels to path as a single batch.
func Save(path string, labels []int64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating labels directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating labels: %w", err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(labels, nil)
	col := b.NewArray()
	defer col.Release()

	rec := array.NewRecord(Schema, []arrow.Array{col}, int64(len(labels)))
	defer rec.Release()

	w := ipc.NewWriter(f, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("writing labels: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing labels stream: %w", err)
	}
	return f.Close()
}
