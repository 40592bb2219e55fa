// Package export writes train/test splits to disk for the classifier stage.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/actprobe/internal/dump"
	"github.com/nvandessel/actprobe/internal/labels"
	"github.com/nvandessel/actprobe/internal/reader"
	"gonum.org/v1/gonum/mat"
)

// File names inside a split directory.
const (
	TrainXFile   = "train_x.arrow"
	TrainYFile   = "train_y.arrow"
	TestXFile    = "test_x.arrow"
	TestYFile    = "test_y.arrow"
	ManifestFile = "split.json"
)

// Manifest describes an exported split.
type Manifest struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Source     string    `json:"source"`
	SubsetSize int       `json:"subset_size"`
	Ratio      float64   `json:"ratio"`
	Width      int       `json:"width"`
	TrainRows  int       `json:"train_rows"`
	TestRows   int       `json:"test_rows"`
	Seed       *uint64   `json:"seed,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Dir        string    `json:"-"`
}

// Options carries the split parameters recorded in the manifest.
type Options struct {
	Source     string
	SubsetSize int
	Ratio      float64
	Seed       *uint64
}

// WriteSplit writes s into a new directory <root>/<identity>-<id> and
// returns its manifest. Inputs are stored as single-chunk dumps, labels as
// label files; an empty partition yields an empty dump and label file.
func WriteSplit(root string, s reader.DataSplit, opts Options) (Manifest, error) {
	id := uuid.New().String()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", s.Identity, id[:8]))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Manifest{}, fmt.Errorf("creating split directory: %w", err)
	}

	m := Manifest{
		ID:         id,
		Identity:   s.Identity.String(),
		Source:     opts.Source,
		SubsetSize: opts.SubsetSize,
		Ratio:      opts.Ratio,
		Width:      width(s.TrainX, s.TestX),
		TrainRows:  s.TrainSize(),
		TestRows:   s.TestSize(),
		Seed:       opts.Seed,
		CreatedAt:  time.Now().UTC(),
		Dir:        dir,
	}

	if err := writeMatrix(filepath.Join(dir, TrainXFile), s.TrainX); err != nil {
		return Manifest{}, err
	}
	if err := labels.Save(filepath.Join(dir, TrainYFile), s.TrainY); err != nil {
		return Manifest{}, err
	}
	if err := writeMatrix(filepath.Join(dir, TestXFile), s.TestX); err != nil {
		return Manifest{}, err
	}
	if err := labels.Save(filepath.Join(dir, TestYFile), s.TestY); err != nil {
		return Manifest{}, err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("marshaling manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0644); err != nil {
		return Manifest{}, fmt.Errorf("writing manifest: %w", err)
	}
	return m, nil
}

// ReadManifest reads split.json from a split directory.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest: %w", err)
	}
	m.Dir = dir
	return m, nil
}

// writeMatrix stores m as a dump holding one chunk. A nil matrix produces a
// dump with no chunks.
func writeMatrix(path string, m *mat.Dense) error {
	if m == nil {
		return dump.WriteFile(path)
	}
	rows, cols := m.Dims()
	c := dump.Chunk{Rows: rows, Cols: cols, Data: make([]float32, 0, rows*cols)}
	for i := 0; i < rows; i++ {
		for _, v := range m.RawRowView(i) {
			c.Data = append(c.Data, float32(v))
		}
	}
	return dump.WriteFile(path, c)
}

func width(ms ...*mat.Dense) int {
	for _, m := range ms {
		if m != nil {
			_, c := m.Dims()
			return c
		}
	}
	return 0
}
