package dump

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// Writer appends chunks to a new dump file. Close must be called to write
// the end-of-stream marker.
type Writer struct {
	file *os.File
	ipc  *ipc.Writer
	mem  memory.Allocator
}

// Create creates (or truncates) the dump at path.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating dump directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating dump: %w", err)
	}

	mem := memory.NewGoAllocator()
	return &Writer{
		file: f,
		ipc:  ipc.NewWriter(f, ipc.WithSchema(Schema), ipc.WithAllocator(mem)),
		mem:  mem,
	}, nil
}

// Append writes c as the next record batch.
func (w *Writer) Append(c Chunk) error {
	if c.Rows*c.Cols != len(c.Data) {
		return fmt.Errorf("chunk shape %dx%d does not match %d values", c.Rows, c.Cols, len(c.Data))
	}

	b := array.NewRecordBuilder(w.mem, Schema)
	defer b.Release()

	lb := b.Field(0).(*array.ListBuilder)
	vb := lb.ValueBuilder().(*array.Float32Builder)
	lb.Reserve(c.Rows)
	vb.Reserve(len(c.Data))
	for i := 0; i < c.Rows; i++ {
		lb.Append(true)
		vb.AppendValues(c.Row(i), nil)
	}

	rec := b.NewRecord()
	defer rec.Release()

	if err := w.ipc.Write(rec); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	return nil
}

// Close finishes the stream and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	ipcErr := w.ipc.Close()
	fileErr := w.file.Close()
	w.file = nil
	if ipcErr != nil {
		return fmt.Errorf("closing dump stream: %w", ipcErr)
	}
	if fileErr != nil {
		return fmt.Errorf("closing dump file: %w", fileErr)
	}
	return nil
}

// WriteFile writes chunks as a complete dump at path.
func WriteFile(path string, chunks ...Chunk) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if err := w.Append(c); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
