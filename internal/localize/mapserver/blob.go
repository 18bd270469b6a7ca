// Package mapserver loads occupancy maps from a map description plus image
// held in a blob store and serves them to localizers.
package mapserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/banshee-data/localize/internal/security"
)

// ErrNotFound is returned when a key does not exist in a store.
var ErrNotFound = errors.New("blob not found")

// BlobStore reads map files by slash-separated key.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// FSStore serves keys from a directory tree.
type FSStore struct {
	Root string
}

// cleanKey rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	if k == "/" {
		return "", fmt.Errorf("empty key %q", key)
	}
	return strings.TrimPrefix(k, "/"), nil
}

// Get opens Root/key.
func (s FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(s.Root, filepath.FromSlash(k))
	if err := security.ValidatePathWithinDirectory(full, s.Root); err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return f, err
}
