// Package pathutil confines requested output paths to configured directories.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a path to .../<parent>/<basename> for error messages.
// "/data/run7/activations/hx_l1.arrow" becomes ".../activations/hx_l1.arrow".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	base := filepath.Base(cleaned)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath reports an error unless path, after cleaning and symlink
// resolution, lies inside one of allowedDirs. The path need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return fmt.Errorf("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}
	resolved, err := resolveExisting(abs)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	for _, dir := range allowedDirs {
		allowed, err := filepath.Abs(filepath.Clean(dir))
		if err != nil {
			continue
		}
		if allowed, err = resolveExisting(allowed); err != nil {
			continue
		}
		if isSubpath(resolved, allowed) {
			return nil
		}
	}
	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(abs))
}

// ResolveOutputDir maps a requested output directory onto base. An empty
// request yields base, a relative one is joined under base, and an absolute
// one must already lie inside base.
func ResolveOutputDir(base, requested string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("output directory not configured")
	}
	target := requested
	switch {
	case requested == "":
		target = base
	case !filepath.IsAbs(requested):
		target = filepath.Join(base, requested)
	}
	if err := ValidatePath(target, []string{base}); err != nil {
		return "", err
	}
	return filepath.Clean(target), nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// path and re-appends the missing tail.
func resolveExisting(path string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(path)
	if parent == path {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(path))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// isSubpath reports whether path equals base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// "/tmp/foo" must not match "/tmp/foobar"
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}
