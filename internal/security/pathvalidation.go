// Package security guards file access made on behalf of remote callers.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside their root.
var ErrOutsideRoot = errors.New("path escapes root")

// ValidatePathWithinDirectory reports whether filePath, after cleaning and
// symlink resolution, stays inside root. filePath need not exist yet; the
// nearest existing parent is resolved instead.
func ValidatePathWithinDirectory(filePath, root string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	canonicalRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return fmt.Errorf("resolve root symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalRoot, canonicalize(absPath))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutsideRoot, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrOutsideRoot, filePath, root)
	}
	return nil
}

// canonicalize resolves symlinks in p, or in its nearest existing parent
// when p itself does not exist.
func canonicalize(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for dir := filepath.Dir(p); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, p)
			return filepath.Join(resolved, rest)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return p
		}
	}
}
