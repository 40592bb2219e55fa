package dump

import (
	"fmt"
	"os"
)

// Info summarises a dump without keeping its values in memory.
type Info struct {
	Path   string
	Chunks int
	Rows   int
	Width  int
	Size   int64
}

// Stat streams the dump at path once and reports its shape. Chunks whose
// width disagrees with the first non-empty chunk fail with ErrFormat.
func Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat dump: %w", err)
	}

	s, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer s.Close()

	info := Info{Path: path, Size: fi.Size()}
	for s.Next() {
		c := s.Chunk()
		info.Chunks++
		if c.Rows == 0 {
			continue
		}
		if info.Width == 0 {
			info.Width = c.Cols
		} else if c.Cols != info.Width {
			return Info{}, fmt.Errorf("%w: chunk %d has width %d, expected %d", ErrFormat, info.Chunks-1, c.Cols, info.Width)
		}
		info.Rows += c.Rows
	}
	if err := s.Err(); err != nil {
		return Info{}, err
	}
	return info, nil
}
