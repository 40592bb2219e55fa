package reader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/actprobe/internal/activations"
)

// Mode says how the index of a Selector is interpreted.
type Mode int

const (
	// Position indexes sequences in extraction order.
	Position Mode = iota
	// Key indexes sequences by corpus key.
	Key
	// Raw indexes rows of the activation matrix directly.
	Raw
)

// String returns the mode tag used by ParseSelector.
func (m Mode) String() string {
	switch m {
	case Position:
		return "pos"
	case Key:
		return "key"
	case Raw:
		return "all"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "pos", "key" and "all" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "pos", "":
		return Position, nil
	case "key":
		return Key, nil
	case "all":
		return Raw, nil
	default:
		return 0, fmt.Errorf("%w: unknown index type %q (valid: pos, key, all)", ErrInvalidSelector, s)
	}
}

// Index is either Indices or Span.
type Index interface {
	isIndex()
}

// Indices is an ordered list of positions, keys or rows.
type Indices []int

// Span is a slice start:stop:step. A nil bound is open.
type Span struct {
	Start *int
	Stop  *int
	Step  int
}

func (Indices) isIndex() {}
func (Span) isIndex()    {}

// Between returns the closed-open span [start, stop) with unit step.
func Between(start, stop int) Span {
	return Span{Start: &start, Stop: &stop, Step: 1}
}

// From returns the span [start, end of data).
func From(start int) Span {
	return Span{Start: &start, Step: 1}
}

// Upto returns the span [beginning of data, stop).
func Upto(stop int) Span {
	return Span{Stop: &stop, Step: 1}
}

// step returns the span step, treating the zero value as 1.
func (s Span) step() int {
	if s.Step == 0 {
		return 1
	}
	return s.Step
}

// Selector is the parsed form of an index request. Identity, when set, is
// selected on the reader before the index is resolved.
type Selector struct {
	Mode     Mode
	Index    Index
	Identity *activations.Identity
}

// Pos selects sequences by extraction position.
func Pos(i ...int) Selector {
	return Selector{Mode: Position, Index: Indices(i)}
}

// Keys selects sequences by corpus key.
func Keys(k ...int) Selector {
	return Selector{Mode: Key, Index: Indices(k)}
}

// Rows selects matrix rows directly.
func Rows(r ...int) Selector {
	return Selector{Mode: Raw, Index: Indices(r)}
}

// SpanOf selects a span under the given mode.
func SpanOf(m Mode, s Span) Selector {
	return Selector{Mode: m, Index: s}
}

// On returns a copy of s that selects id before indexing.
func (s Selector) On(id activations.Identity) Selector {
	s.Identity = &id
	return s
}

// String renders s in the grammar accepted by ParseSelector.
func (s Selector) String() string {
	var b strings.Builder
	switch idx := s.Index.(type) {
	case Indices:
		if len(idx) == 1 {
			b.WriteString(strconv.Itoa(idx[0]))
		} else {
			b.WriteByte('[')
			for i, v := range idx {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(strconv.Itoa(v))
			}
			b.WriteByte(']')
		}
	case Span:
		if idx.Start != nil {
			b.WriteString(strconv.Itoa(*idx.Start))
		}
		b.WriteByte(':')
		if idx.Stop != nil {
			b.WriteString(strconv.Itoa(*idx.Stop))
		}
		if idx.step() != 1 {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(idx.Step))
		}
	}
	if s.Mode != Position {
		b.WriteByte('/')
		b.WriteString(s.Mode.String())
	}
	if s.Identity != nil {
		b.WriteByte('@')
		b.WriteString(s.Identity.String())
	}
	return b.String()
}

// ParseSelector parses the textual selector form
//
//	index[/mode][@identity]
//
// where index is "8", "[0,4,6]" or "start:stop[:step]" with optional bounds,
// mode is pos (default), key or all, and identity is a compact name such as "cx0".
//
//	ParseSelector("8")            // 8th extracted sequence
//	ParseSelector("8:")           // 8th to last extracted sequence
//	ParseSelector("[0,4,6]/key")  // sequences with keys 0, 4 and 6
//	ParseSelector(":20/all")      // the first 20 rows
//	ParseSelector("8@cx0")        // 8th sequence of the layer 0 cell state
func ParseSelector(text string) (Selector, error) {
	var sel Selector
	rest := strings.TrimSpace(text)
	if rest == "" {
		return Selector{}, fmt.Errorf("%w: empty selector", ErrInvalidSelector)
	}

	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		id, err := activations.ParseIdentity(rest[at+1:])
		if err != nil {
			return Selector{}, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
		sel.Identity = &id
		rest = rest[:at]
	}

	if slash := strings.LastIndexByte(rest, '/'); slash >= 0 {
		m, err := ParseMode(strings.TrimSpace(rest[slash+1:]))
		if err != nil {
			return Selector{}, err
		}
		sel.Mode = m
		rest = rest[:slash]
	}

	idx, err := parseIndex(strings.TrimSpace(rest))
	if err != nil {
		return Selector{}, err
	}
	sel.Index = idx
	return sel, nil
}

func parseIndex(s string) (Index, error) {
	switch {
	case s == "":
		return nil, fmt.Errorf("%w: missing index", ErrInvalidSelector)
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return Indices{}, nil
		}
		parts := strings.Split(inner, ",")
		out := make(Indices, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("%w: bad list element %q", ErrInvalidSelector, p)
			}
			out = append(out, v)
		}
		return out, nil
	case strings.Contains(s, ":"):
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("%w: bad span %q", ErrInvalidSelector, s)
		}
		var span Span
		bounds := []**int{&span.Start, &span.Stop}
		for i, p := range parts[:2] {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("%w: bad span bound %q", ErrInvalidSelector, p)
			}
			*bounds[i] = &v
		}
		span.Step = 1
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			v, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return nil, fmt.Errorf("%w: bad span step %q", ErrInvalidSelector, parts[2])
			}
			if v == 0 {
				return nil, fmt.Errorf("%w: span step cannot be zero", ErrInvalidSelector)
			}
			span.Step = v
		}
		return span, nil
	default:
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: bad index %q", ErrInvalidSelector, s)
		}
		return Indices{v}, nil
	}
}
