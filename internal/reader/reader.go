// Package reader loads extracted activations into memory and serves them by
// sequence position, corpus key or raw row, and derives train/test splits.
//
// A Reader holds at most one activation matrix at a time. Selecting another
// identity drops the current matrix before the new one is read, so matrices
// returned earlier by Activations must not be relied on across such a call.
// A Reader is not safe for concurrent use.
package reader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/dump"
	"github.com/nvandessel/actprobe/internal/labels"
	"github.com/nvandessel/actprobe/internal/logging"
	"github.com/nvandessel/actprobe/internal/ranges"
	"gonum.org/v1/gonum/mat"
)

// cached is the currently materialised activation stream.
type cached struct {
	id     activations.Identity
	matrix *mat.Dense
}

// Reader reads the artifacts of one activations directory.
type Reader struct {
	store  activations.Store
	logger *slog.Logger
	rng    *rand.Rand

	current *cached
	labels  []int64
	ranges  *ranges.Table
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRand sets the random source for data splits. Without it the global,
// unseeded source is used.
func WithRand(rng *rand.Rand) Option {
	return func(r *Reader) {
		r.rng = rng
	}
}

// WithSeed makes data splits reproducible for a given seed.
func WithSeed(seed uint64) Option {
	return WithRand(NewRand(seed))
}

// NewRand returns a deterministic random source for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// SetRand replaces the random source for data splits. nil restores the
// global source.
func (r *Reader) SetRand(rng *rand.Rand) {
	r.rng = rng
}

// New returns a Reader over store. Nothing is read until first use.
func New(store activations.Store, opts ...Option) *Reader {
	r := &Reader{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the artifact layout the reader reads from.
func (r *Reader) Store() activations.Store {
	return r.store
}

// Labels returns the label vector, loading it on first access.
func (r *Reader) Labels() ([]int64, error) {
	if r.labels == nil {
		l, err := labels.Load(r.store.LabelsPath())
		if err != nil {
			return nil, err
		}
		r.labels = l
	}
	return r.labels, nil
}

// SequenceCount returns the number of extracted rows, which equals the
// number of labels. Load allocates exactly this many rows.
func (r *Reader) SequenceCount() (int, error) {
	l, err := r.Labels()
	if err != nil {
		return 0, err
	}
	return len(l), nil
}

// Ranges returns the range table, loading it on first access.
func (r *Reader) Ranges() (*ranges.Table, error) {
	if r.ranges == nil {
		t, err := ranges.Load(r.store.RangesPath())
		if err != nil {
			return nil, err
		}
		r.ranges = t
	}
	return r.ranges, nil
}

// Current returns the selected identity, if any.
func (r *Reader) Current() (activations.Identity, bool) {
	if r.current == nil {
		return activations.Identity{}, false
	}
	return r.current.id, true
}

// Activations returns the matrix of the selected identity, or nil.
func (r *Reader) Activations() *mat.Dense {
	if r.current == nil {
		return nil
	}
	return r.current.matrix
}

// Select makes id the active stream. Selecting the active identity again is
// a no-op; any other identity replaces the cached matrix.
func (r *Reader) Select(id activations.Identity) error {
	if r.current != nil && r.current.id == id {
		r.logger.Log(context.Background(), logging.LevelTrace, "activation cache hit", "identity", id.String())
		return nil
	}

	r.current = nil
	m, err := r.Load(id)
	if err != nil {
		return err
	}
	r.current = &cached{id: id, matrix: m}
	return nil
}

// Release drops the cached matrix.
func (r *Reader) Release() {
	r.current = nil
}

// Load reads the dump of id into a new matrix without touching the cache.
//
// The matrix is allocated once the first chunk reveals the hidden width, with
// as many rows as there are labels; chunks are then copied in storage order.
func (r *Reader) Load(id activations.Identity) (*mat.Dense, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	total, err := r.SequenceCount()
	if err != nil {
		return nil, err
	}

	path := r.store.DumpPath(id)
	s, err := dump.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}
	defer s.Close()

	var (
		m      *mat.Dense
		width  int
		offset int
		chunks int
	)
	for s.Next() {
		c := s.Chunk()
		chunks++
		if c.Rows == 0 {
			continue
		}

		if m == nil {
			if total == 0 {
				return nil, fmt.Errorf("%w: %s has rows but there are no labels", ErrFormat, id)
			}
			if c.Cols == 0 {
				return nil, fmt.Errorf("%w: %s has zero-width rows", ErrFormat, id)
			}
			width = c.Cols
			m = mat.NewDense(total, width, nil)
		}
		if c.Cols != width {
			return nil, fmt.Errorf("%w: %s chunk %d has width %d, expected %d", ErrFormat, id, chunks-1, c.Cols, width)
		}
		if offset+c.Rows > total {
			return nil, fmt.Errorf("%w: %s has more than %d rows", ErrFormat, id, total)
		}

		raw := m.RawMatrix()
		for i := 0; i < c.Rows; i++ {
			dst := raw.Data[(offset+i)*raw.Stride : (offset+i)*raw.Stride+width]
			for j, v := range c.Row(i) {
				dst[j] = float64(v)
			}
		}
		offset += c.Rows
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}

	if m == nil {
		return nil, fmt.Errorf("%w: %s contains no activations", ErrFormat, id)
	}
	if offset != total {
		return nil, fmt.Errorf("%w: %s has %d rows, expected %d", ErrFormat, id, offset, total)
	}

	r.logger.Debug("loaded activations",
		"identity", id.String(),
		"rows", offset,
		"width", width,
		"chunks", chunks,
	)
	return m, nil
}
