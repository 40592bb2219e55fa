package reader

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/actprobe/internal/activations"
	"gonum.org/v1/gonum/mat"
)

// All requests a split over every extracted row.
const All = -1

// DefaultSplitRatio is the train fraction used when none is configured.
const DefaultSplitRatio = 0.9

// DataSplit holds supervised train and test sets. A partition that received
// no rows has a nil matrix and an empty label slice.
type DataSplit struct {
	Identity activations.Identity
	TrainX   *mat.Dense
	TrainY   []int64
	TestX    *mat.Dense
	TestY    []int64

	// TrainRows and TestRows are the matrix rows each partition was drawn from.
	TrainRows []int
	TestRows  []int
}

// TrainSize returns the number of training rows.
func (d DataSplit) TrainSize() int { return len(d.TrainRows) }

// TestSize returns the number of test rows.
func (d DataSplit) TestSize() int { return len(d.TestRows) }

// CreateDataSplit draws subsetSize rows (All for every row) uniformly at
// random without replacement from the activations of id, and puts the first
// floor(size*ratio) of them in the training set.
//
// Parameters are validated before anything is loaded. The randomness is not
// seeded here; pass WithRand to New for reproducible splits.
func (r *Reader) CreateDataSplit(id activations.Identity, subsetSize int, ratio float64) (DataSplit, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return DataSplit{}, fmt.Errorf("%w: split ratio must be in [0, 1], got %v", ErrValidation, ratio)
	}

	if subsetSize != All && subsetSize <= 0 {
		return DataSplit{}, fmt.Errorf("%w: subset size must be positive, got %d", ErrValidation, subsetSize)
	}

	total, err := r.SequenceCount()
	if err != nil {
		return DataSplit{}, err
	}
	size := total
	if subsetSize != All {
		if subsetSize > total {
			return DataSplit{}, fmt.Errorf("%w: subset size must be in (0, %d], got %d", ErrValidation, total, subsetSize)
		}
		size = subsetSize
	}

	if err := r.Select(id); err != nil {
		return DataSplit{}, err
	}
	labels, err := r.Labels()
	if err != nil {
		return DataSplit{}, err
	}

	perm := r.perm(total)[:size]
	cut := int(math.Floor(float64(size) * ratio))
	train, test := perm[:cut], perm[cut:]

	m := r.current.matrix
	split := DataSplit{
		Identity:  id,
		TrainX:    gather(m, train),
		TrainY:    pick(labels, train),
		TestX:     gather(m, test),
		TestY:     pick(labels, test),
		TrainRows: train,
		TestRows:  test,
	}

	r.logger.Debug("created data split",
		"identity", id.String(),
		"size", size,
		"train", len(train),
		"test", len(test),
	)
	return split, nil
}

func (r *Reader) perm(n int) []int {
	if r.rng != nil {
		return r.rng.Perm(n)
	}
	return rand.Perm(n)
}

func pick(labels []int64, rows []int) []int64 {
	out := make([]int64, len(rows))
	for i, row := range rows {
		out[i] = labels[row]
	}
	return out
}
