package reader

import (
	"errors"

	"github.com/nvandessel/actprobe/internal/dump"
)

var (
	// ErrFormat is returned when a dump disagrees with the label count or
	// changes width between chunks.
	ErrFormat = dump.ErrFormat

	// ErrKeyNotFound is returned for corpus keys missing from the range
	// table and for positions or raw rows outside the data.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidSelector is returned for selectors of unknown shape or mode.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrEmptySelection is returned when a selector resolves to no rows.
	ErrEmptySelection = errors.New("selector matches no rows")

	// ErrUnsupported is returned for stepped spans where only unit steps work.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrValidation is returned for out-of-range split parameters.
	ErrValidation = errors.New("validation error")

	// ErrNoActivations is returned when indexing before any identity was selected.
	ErrNoActivations = errors.New("no activations selected")
)
