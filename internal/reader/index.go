package reader

import (
	"errors"
	"fmt"

	"github.com/nvandessel/actprobe/internal/ranges"
	"gonum.org/v1/gonum/mat"
)

// Index returns the rows addressed by sel as a new matrix.
//
// Position and key selectors resolve to whole sequences; the rows of every
// implicated sequence are concatenated in selector order. Raw selectors
// address matrix rows directly. Raw spans are clamped to the matrix like
// slices; raw indices outside the matrix fail with ErrKeyNotFound.
func (r *Reader) Index(sel Selector) (*mat.Dense, error) {
	if sel.Identity != nil {
		if err := r.Select(*sel.Identity); err != nil {
			return nil, err
		}
	}
	if r.current == nil {
		return nil, ErrNoActivations
	}

	rows, err := r.resolve(sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySelection, sel)
	}
	return gather(r.current.matrix, rows), nil
}

// resolve turns sel into explicit row indices of the active matrix.
func (r *Reader) resolve(sel Selector) ([]int, error) {
	total, _ := r.current.matrix.Dims()

	switch sel.Mode {
	case Raw:
		return rawRows(sel.Index, total)
	case Key, Position:
		t, err := r.Ranges()
		if err != nil {
			return nil, err
		}
		var spans []ranges.Range
		if sel.Mode == Key {
			spans, err = keyRanges(t, sel.Index)
		} else {
			spans, err = positionRanges(t, sel.Index)
		}
		if err != nil {
			return nil, err
		}
		return expand(spans, total)
	default:
		return nil, fmt.Errorf("%w: unknown mode %v", ErrInvalidSelector, sel.Mode)
	}
}

func keyRanges(t *ranges.Table, idx Index) ([]ranges.Range, error) {
	switch idx := idx.(type) {
	case Indices:
		out := make([]ranges.Range, 0, len(idx))
		for _, k := range idx {
			rg, err := t.Lookup(k)
			if err != nil {
				if errors.Is(err, ranges.ErrUnknownKey) {
					return nil, fmt.Errorf("%w: sequence key %d", ErrKeyNotFound, k)
				}
				return nil, err
			}
			out = append(out, rg)
		}
		return out, nil
	case Span:
		if idx.step() != 1 {
			return nil, fmt.Errorf("%w: step %d in key index", ErrUnsupported, idx.Step)
		}
		lo, hi := 0, t.MaxKey()+1
		if idx.Start != nil {
			lo = *idx.Start
		}
		if idx.Stop != nil {
			hi = *idx.Stop
		}
		return t.Between(lo, hi), nil
	default:
		return nil, fmt.Errorf("%w: index type %T", ErrInvalidSelector, idx)
	}
}

func positionRanges(t *ranges.Table, idx Index) ([]ranges.Range, error) {
	n := t.Len()
	switch idx := idx.(type) {
	case Indices:
		out := make([]ranges.Range, 0, len(idx))
		for _, p := range idx {
			pos := p
			if pos < 0 {
				pos += n
			}
			_, rg, err := t.At(pos)
			if err != nil {
				return nil, fmt.Errorf("%w: position %d of %d sequences", ErrKeyNotFound, p, n)
			}
			out = append(out, rg)
		}
		return out, nil
	case Span:
		if idx.step() != 1 {
			return nil, fmt.Errorf("%w: step %d in position index", ErrUnsupported, idx.Step)
		}
		lo, hi := clampSpan(idx, n)
		out := make([]ranges.Range, 0, max(hi-lo, 0))
		for pos := lo; pos < hi; pos++ {
			_, rg, _ := t.At(pos)
			out = append(out, rg)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: index type %T", ErrInvalidSelector, idx)
	}
}

func rawRows(idx Index, total int) ([]int, error) {
	switch idx := idx.(type) {
	case Indices:
		out := make([]int, 0, len(idx))
		for _, i := range idx {
			row := i
			if row < 0 {
				row += total
			}
			if row < 0 || row >= total {
				return nil, fmt.Errorf("%w: row %d of %d", ErrKeyNotFound, i, total)
			}
			out = append(out, row)
		}
		return out, nil
	case Span:
		step := idx.step()
		if step < 0 {
			return nil, fmt.Errorf("%w: negative step %d in raw index", ErrUnsupported, step)
		}
		lo, hi := clampSpan(idx, total)
		var out []int
		for row := lo; row < hi; row += step {
			out = append(out, row)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: index type %T", ErrInvalidSelector, idx)
	}
}

// clampSpan resolves open and negative bounds against n and clamps them to
// [0, n], the way slicing does.
func clampSpan(s Span, n int) (int, int) {
	lo, hi := 0, n
	if s.Start != nil {
		lo = *s.Start
		if lo < 0 {
			lo += n
		}
	}
	if s.Stop != nil {
		hi = *s.Stop
		if hi < 0 {
			hi += n
		}
	}
	lo = min(max(lo, 0), n)
	hi = min(max(hi, 0), n)
	return lo, hi
}

// expand lists the rows of every span in order.
func expand(spans []ranges.Range, total int) ([]int, error) {
	size := 0
	for _, s := range spans {
		if s.Start < 0 || s.End > total {
			return nil, fmt.Errorf("%w: range [%d, %d) exceeds %d rows", ErrFormat, s.Start, s.End, total)
		}
		size += s.Len()
	}
	rows := make([]int, 0, size)
	for _, s := range spans {
		for i := s.Start; i < s.End; i++ {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// gather copies rows of src into a new matrix. It returns nil when rows is
// empty, since gonum matrices cannot have zero rows.
func gather(src *mat.Dense, rows []int) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	_, cols := src.Dims()
	out := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		out.SetRow(i, src.RawRowView(row))
	}
	return out
}
