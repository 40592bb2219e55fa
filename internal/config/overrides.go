package config

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApplyOverrides merges dotted "group.key=value" assignments over cfg and
// returns the result; cfg itself is left untouched. Values are parsed as YAML,
// so "0.8" is a number and "[hx0, cx1]" a list. A key that names no setting
// is an error.
func ApplyOverrides(cfg *ProbeConfig, overrides []string) (*ProbeConfig, error) {
	base, err := toMap(cfg)
	if err != nil {
		return nil, err
	}

	for _, o := range overrides {
		key, raw, ok := strings.Cut(o, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected group.key=value", o)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}

		path := strings.Split(key, ".")
		nested := map[string]any{path[len(path)-1]: value}
		for i := len(path) - 2; i >= 0; i-- {
			nested = map[string]any{path[i]: nested}
		}
		mergeMaps(base, nested)
	}

	data, err := yaml.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encoding merged config: %w", err)
	}
	out := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return nil, fmt.Errorf("applying overrides: %w", err)
	}
	return out, nil
}

// mergeMaps merges src into dst recursively; leaves of src win.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				mergeMaps(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func toMap(cfg *ProbeConfig) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return m, nil
}

// flatten returns cfg as a map of dotted keys to leaf values.
func flatten(cfg *ProbeConfig) (map[string]any, error) {
	m, err := toMap(cfg)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(key, sub)
				continue
			}
			out[key] = v
		}
	}
	walk("", m)
	return out, nil
}

func isZero(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case int:
		return v == 0
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}
