// Package dump reads and writes per-sequence activation chunks.
//
// A dump is an Arrow IPC stream with a single list<float32> column named
// "activation". Each record batch holds one extracted sequence and each list
// entry is one timestep row, so the stream grows append-only as the extractor
// walks the corpus. Readers consume it until the end-of-stream marker.
package dump

import (
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// ColumnName is the only column of a dump record batch.
const ColumnName = "activation"

// ErrFormat marks a dump whose contents break the chunk contract: ragged rows,
// mismatched widths, or a row total that disagrees with the labels.
var ErrFormat = errors.New("activation format error")

// Schema is the schema every dump stream carries.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: ColumnName, Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
}, nil)

// Chunk is the activation block of one sequence, stored row-major.
type Chunk struct {
	Rows int
	Cols int
	Data []float32
}

// Row returns the values of row i.
func (c Chunk) Row(i int) []float32 {
	return c.Data[i*c.Cols : (i+1)*c.Cols]
}

// Stream iterates the chunks of a dump file. The zero value is not usable;
// obtain one with Open.
//
//	s, err := dump.Open(path)
//	...
//	defer s.Close()
//	for s.Next() {
//		c := s.Chunk()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	file   *os.File
	reader *ipc.Reader
	chunk  Chunk
	count  int
	err    error
}

// Open opens the dump at path and validates its schema.
func Open(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}

	r, err := ipc.NewReader(f, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: reading dump header of %s: %v", ErrFormat, path, err)
	}

	if err := checkSchema(r.Schema()); err != nil {
		r.Release()
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Stream{file: f, reader: r}, nil
}

// Next advances to the next chunk. It returns false once the stream is
// exhausted or an error occurred; Err tells the two apart.
func (s *Stream) Next() bool {
	if s.err != nil || s.reader == nil {
		return false
	}
	if !s.reader.Next() {
		if err := s.reader.Err(); err != nil {
			s.err = fmt.Errorf("reading chunk %d: %w", s.count, err)
		}
		return false
	}

	chunk, err := decodeChunk(s.reader.Record())
	if err != nil {
		s.err = fmt.Errorf("chunk %d: %w", s.count, err)
		return false
	}
	s.chunk = chunk
	s.count++
	return true
}

// Chunk returns the chunk produced by the last successful Next. Its data is
// owned by the caller and stays valid after further calls to Next.
func (s *Stream) Chunk() Chunk {
	return s.chunk
}

// Err returns the first error hit while iterating. End of stream is not an error.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the reader and the underlying file.
func (s *Stream) Close() error {
	if s.reader != nil {
		s.reader.Release()
		s.reader = nil
	}
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func checkSchema(schema *arrow.Schema) error {
	if schema.NumFields() != 1 {
		return fmt.Errorf("%w: expected 1 column, got %d", ErrFormat, schema.NumFields())
	}
	f := schema.Field(0)
	if f.Name != ColumnName || !arrow.TypeEqual(f.Type, Schema.Field(0).Type) {
		return fmt.Errorf("%w: unexpected column %s %s", ErrFormat, f.Name, f.Type)
	}
	return nil
}

// decodeChunk copies a record batch out of Arrow memory. The width of a chunk
// is the length of its first row; every other row must match it.
func decodeChunk(rec arrow.Record) (Chunk, error) {
	list, ok := rec.Column(0).(*array.List)
	if !ok {
		return Chunk{}, fmt.Errorf("%w: column is %T, not a list", ErrFormat, rec.Column(0))
	}
	values, ok := list.ListValues().(*array.Float32)
	if !ok {
		return Chunk{}, fmt.Errorf("%w: list values are %T, not float32", ErrFormat, list.ListValues())
	}

	rows := list.Len()
	if rows == 0 {
		return Chunk{}, nil
	}

	start, end := list.ValueOffsets(0)
	cols := int(end - start)
	data := make([]float32, 0, rows*cols)
	for i := 0; i < rows; i++ {
		start, end := list.ValueOffsets(i)
		if int(end-start) != cols {
			return Chunk{}, fmt.Errorf("%w: row %d has %d values, row 0 has %d", ErrFormat, i, end-start, cols)
		}
		for j := start; j < end; j++ {
			data = append(data, values.Value(int(j)))
		}
	}

	return Chunk{Rows: rows, Cols: cols, Data: data}, nil
}
