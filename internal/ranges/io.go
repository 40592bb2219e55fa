package ranges

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

// Schema of ranges.arrow; rows are stored in extraction order.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "key", Type: arrow.PrimitiveTypes.Int64},
	{Name: "start", Type: arrow.PrimitiveTypes.Int64},
	{Name: "end", Type: arrow.PrimitiveTypes.Int64},
}, nil)

// Load reads a range table persisted by the extractor. Null cells are an
// ErrFormat error.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ranges: %w", err)
	}
	defer f.Close()

	r, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("reading ranges header: %w", err)
	}
	defer r.Release()

	if !r.Schema().Equal(Schema) {
		return nil, fmt.Errorf("unexpected ranges schema: %s", r.Schema())
	}

	t := NewTable()
	for r.Next() {
		rec := r.Record()
		keys := rec.Column(0).(*array.Int64)
		starts := rec.Column(1).(*array.Int64)
		ends := rec.Column(2).(*array.Int64)
		for i, col := range []*array.Int64{keys, starts, ends} {
			if n := col.NullN(); n != 0 {
				return nil, fmt.Errorf("%w: ranges column %s has %d null entries", dump.ErrFormat, Schema.Field(i).Name, n)
			}
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			rg := Range{Start: int(starts.Value(i)), End: int(ends.Value(i))}
			if err := t.Add(int(keys.Value(i)), rg); err != nil {
				return nil, fmt.Errorf("loading ranges: %w", err)
			}
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading ranges: %w", err)
	}
	return t, nil
}

// Save writes t to path in extraction order.
func Save(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating ranges directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating ranges: %w", err)
	}
	defer f.Close()

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, Schema)
	defer b.Release()

	keys := b.Field(0).(*array.Int64Builder)
	starts := b.Field(1).(*array.Int64Builder)
	ends := b.Field(2).(*array.Int64Builder)
	for _, k := range t.keys {
		rg := t.spans[k]
		keys.Append(int64(k))
		starts.Append(int64(rg.Start))
		ends.Append(int64(rg.End))
	}

	rec := b.NewRecord()
	defer rec.Release()

	w := ipc.NewWriter(f, ipc.WithSchema(Schema), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("writing ranges: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing ranges stream: %w", err)
	}
	return f.Close()
}
