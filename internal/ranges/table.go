// Package ranges maps extracted sequences to their rows in the flattened
// activation matrix.
package ranges

import (
	"errors"
	"fmt"
)

// ErrUnknownKey is returned when a sequence key is not in the table.
var ErrUnknownKey = errors.New("unknown sequence key")

// Range is the half-open row span [Start, End) of one sequence.
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the span.
func (r Range) Len() int {
	return r.End - r.Start
}

// Table maps sequence keys to row spans and remembers extraction order.
// Keys are corpus keys: they need not be contiguous nor sorted.
type Table struct {
	keys  []int
	spans map[int]Range
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{spans: make(map[int]Range)}
}

// Add appends key at the next extraction position.
func (t *Table) Add(key int, r Range) error {
	if _, ok := t.spans[key]; ok {
		return fmt.Errorf("duplicate sequence key %d", key)
	}
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("invalid range [%d, %d) for key %d", r.Start, r.End, key)
	}
	t.keys = append(t.keys, key)
	t.spans[key] = r
	return nil
}

// Len returns the number of sequences.
func (t *Table) Len() int {
	return len(t.keys)
}

// Lookup returns the span of key.
func (t *Table) Lookup(key int) (Range, error) {
	r, ok := t.spans[key]
	if !ok {
		return Range{}, fmt.Errorf("%w: %d", ErrUnknownKey, key)
	}
	return r, nil
}

// At returns the key and span of the pos-th extracted sequence.
func (t *Table) At(pos int) (int, Range, error) {
	if pos < 0 || pos >= len(t.keys) {
		return 0, Range{}, fmt.Errorf("position %d out of range [0, %d)", pos, len(t.keys))
	}
	key := t.keys[pos]
	return key, t.spans[key], nil
}

// Keys returns the keys in extraction order.
func (t *Table) Keys() []int {
	out := make([]int, len(t.keys))
	copy(out, t.keys)
	return out
}

// MaxKey returns the largest key, or -1 for an empty table.
func (t *Table) MaxKey() int {
	m := -1
	for i, k := range t.keys {
		if i == 0 || k > m {
			m = k
		}
	}
	return m
}

// Between returns the spans of all keys k with lo <= k < hi, in extraction order.
func (t *Table) Between(lo, hi int) []Range {
	var out []Range
	for _, k := range t.keys {
		if k >= lo && k < hi {
			out = append(out, t.spans[k])
		}
	}
	return out
}

// TotalRows returns the sum of all span lengths.
func (t *Table) TotalRows() int {
	n := 0
	for _, r := range t.spans {
		n += r.Len()
	}
	return n
}

// Validate checks that the spans, taken in extraction order, tile [0, total)
// without gaps or overlaps.
func (t *Table) Validate(total int) error {
	next := 0
	for pos, k := range t.keys {
		r := t.spans[k]
		if r.Start != next {
			return fmt.Errorf("sequence %d (key %d) starts at row %d, expected %d", pos, k, r.Start, next)
		}
		next = r.End
	}
	if next != total {
		return fmt.Errorf("ranges cover %d rows, expected %d", next, total)
	}
	return nil
}
