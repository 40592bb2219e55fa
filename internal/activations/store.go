package activations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Extension is the file extension of every artifact written by the extractor.
const Extension = ".arrow"

const (
	rangesFile = "ranges" + Extension
	labelsFile = "labels" + Extension
)

var dumpPattern = regexp.MustCompile(`^(.+)_l(\d+)` + regexp.QuoteMeta(Extension) + `$`)

// Store resolves artifact paths inside one activations directory.
type Store struct {
	// Dir holds the per-identity dumps and ranges.arrow.
	Dir string

	// LabelPath overrides the default <Dir>/labels.arrow when set.
	LabelPath string
}

// NewStore returns a Store rooted at dir. An empty labelPath selects the
// labels file next to the dumps.
func NewStore(dir, labelPath string) Store {
	return Store{Dir: trim(dir), LabelPath: labelPath}
}

// DumpPath returns <dir>/<name>_l<layer>.arrow.
func (s Store) DumpPath(id Identity) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_l%d%s", id.Name, id.Layer, Extension))
}

// RangesPath returns the path of the persisted range table.
func (s Store) RangesPath() string {
	return filepath.Join(s.Dir, rangesFile)
}

// LabelsPath returns the explicit label path, or <dir>/labels.arrow.
func (s Store) LabelsPath() string {
	if s.LabelPath != "" {
		return s.LabelPath
	}
	return filepath.Join(s.Dir, labelsFile)
}

// Identities lists every identity with a dump file in the directory, ordered
// by layer and then name. Files that do not follow the naming scheme, or whose
// component name has no compact form (such as hx1_l2.arrow), are skipped.
func (s Store) Identities() ([]Identity, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading activations directory: %w", err)
	}

	var ids []Identity
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := dumpPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		layer, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		id := Identity{Layer: layer, Name: m[1]}
		if id.Validate() != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Layer != ids[j].Layer {
			return ids[i].Layer < ids[j].Layer
		}
		return ids[i].Name < ids[j].Name
	})
	return ids, nil
}

// trim strips trailing separators so that joined paths stay canonical.
func trim(dir string) string {
	if dir == "" {
		return dir
	}
	trimmed := strings.TrimRight(dir, `/\`)
	if trimmed == "" {
		return string(filepath.Separator)
	}
	return trimmed
}
