// Package activations describes which activation streams exist and where the
// extraction step left them on disk.
package activations

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity names one activation stream: a layer index and a component such as
// "hx" (hidden state) or "cx" (cell state).
type Identity struct {
	Layer int
	Name  string
}

// String renders the compact form used in config files, e.g. "hx1".
func (id Identity) String() string {
	return id.Name + strconv.Itoa(id.Layer)
}

// Validate reports whether the identity can name a dump file and survive a
// round trip through String and ParseIdentity.
func (id Identity) Validate() error {
	if id.Layer < 0 {
		return fmt.Errorf("invalid activation identity %q: negative layer %d", id.String(), id.Layer)
	}
	if id.Name == "" {
		return fmt.Errorf("invalid activation identity: empty component name")
	}
	if strings.ContainsAny(id.Name, `/\`) {
		return fmt.Errorf("invalid activation identity: component name %q contains a path separator", id.Name)
	}
	// The compact form reads every trailing digit as the layer.
	if last := id.Name[len(id.Name)-1]; last >= '0' && last <= '9' {
		return fmt.Errorf("invalid activation identity: component name %q ends in a digit", id.Name)
	}
	return nil
}

// ParseIdentity casts the compact "<name><layer>" form into an Identity.
// All trailing digits form the layer, so "hx12" is layer 12 of "hx".
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return Identity{}, fmt.Errorf("invalid activation name %q: missing layer suffix", s)
	}
	if i == 0 {
		return Identity{}, fmt.Errorf("invalid activation name %q: missing component name", s)
	}

	layer, err := strconv.Atoi(s[i:])
	if err != nil {
		return Identity{}, fmt.Errorf("invalid activation name %q: %w", s, err)
	}

	id := Identity{Layer: layer, Name: s[:i]}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// ParseIdentities parses a list of compact names, failing on the first bad one.
func ParseIdentities(names []string) ([]Identity, error) {
	ids := make([]Identity, 0, len(names))
	for _, n := range names {
		id, err := ParseIdentity(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
