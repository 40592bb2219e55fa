// Package retention prunes exported splits under a split output directory.
package retention

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/actprobe/internal/export"
)

// SplitInfo holds metadata for retention decisions.
type SplitInfo struct {
	Dir       string
	ID        string
	Identity  string
	Size      int64
	CreatedAt time.Time
}

// Policy decides which splits to keep. Input is sorted newest first.
type Policy interface {
	Apply(splits []SplitInfo) (keep []SplitInfo)
}

// CountPolicy keeps the MaxCount newest splits of each identity.
type CountPolicy struct {
	MaxCount int
}

// Apply implements Policy.
func (p *CountPolicy) Apply(splits []SplitInfo) []SplitInfo {
	seen := make(map[string]int)
	var keep []SplitInfo
	for _, s := range splits {
		if seen[s.Identity] < p.MaxCount {
			keep = append(keep, s)
		}
		seen[s.Identity]++
	}
	return keep
}

// AgePolicy keeps splits newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
}

// Apply implements Policy.
func (p *AgePolicy) Apply(splits []SplitInfo) []SplitInfo {
	cutoff := time.Now().Add(-p.MaxAge)
	var keep []SplitInfo
	for _, s := range splits {
		if s.CreatedAt.After(cutoff) {
			keep = append(keep, s)
		}
	}
	return keep
}

// SizePolicy keeps the newest splits until their total size would exceed
// MaxTotalBytes. The newest split is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

// Apply implements Policy.
func (p *SizePolicy) Apply(splits []SplitInfo) []SplitInfo {
	var keep []SplitInfo
	var total int64
	for _, s := range splits {
		if total+s.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, s)
		total += s.Size
	}
	return keep
}

// CompositePolicy keeps a split if any sub-policy keeps it.
type CompositePolicy struct {
	Policies []Policy
}

// Apply implements Policy.
func (p *CompositePolicy) Apply(splits []SplitInfo) []SplitInfo {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, s := range policy.Apply(splits) {
			kept[s.Dir] = true
		}
	}

	var result []SplitInfo
	for _, s := range splits {
		if kept[s.Dir] {
			result = append(result, s)
		}
	}
	return result
}

// List returns the splits directly under root, newest first. Directories
// without a readable split.json are ignored.
func List(root string) ([]SplitInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading split directory: %w", err)
	}

	var splits []SplitInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		m, err := export.ReadManifest(dir)
		if err != nil {
			continue
		}
		size, err := dirSize(dir)
		if err != nil {
			return nil, err
		}
		splits = append(splits, SplitInfo{
			Dir:       dir,
			ID:        m.ID,
			Identity:  m.Identity,
			Size:      size,
			CreatedAt: m.CreatedAt,
		})
	}

	sort.SliceStable(splits, func(i, j int) bool {
		return splits[i].CreatedAt.After(splits[j].CreatedAt)
	})
	return splits, nil
}

// Apply removes the splits under root that policy does not keep and
// returns them. With dryRun nothing is removed.
func Apply(root string, policy Policy, dryRun bool) (removed []SplitInfo, err error) {
	splits, err := List(root)
	if err != nil {
		return nil, err
	}

	keepSet := make(map[string]bool)
	for _, s := range policy.Apply(splits) {
		keepSet[s.Dir] = true
	}

	for _, s := range splits {
		if keepSet[s.Dir] {
			continue
		}
		if !dryRun {
			if err := os.RemoveAll(s.Dir); err != nil {
				return removed, fmt.Errorf("removing %s: %w", filepath.Base(s.Dir), err)
			}
		}
		removed = append(removed, s)
	}
	return removed, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sizing %s: %w", filepath.Base(dir), err)
	}
	return total, nil
}

// ParseDuration parses durations like "30d", "2w" or "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix := s[len(s)-1]; suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// ParseSize parses sizes like "500KB", "100MB" or "1GB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longer suffixes first so "MB" does not match "B".
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, ss := range suffixes {
		if numStr, ok := strings.CutSuffix(s, ss.suffix); ok {
			num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size: %q", s)
			}
			return num * ss.multiplier, nil
		}
	}
	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
