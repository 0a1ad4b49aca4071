package content

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DirStoreName is the store name of the local directory store.
const DirStoreName = "dir"

// DirStore serves keys as files relative to Root.
type DirStore struct {
	Root string
}

// Open implements Store. Keys may not escape Root.
func (d DirStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if strings.TrimSpace(d.Root) == "" {
		return nil, fmt.Errorf("%w: dir store has no root", ErrUnknownStore)
	}
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidReference)
	}
	full := filepath.Join(d.Root, clean)
	rel, err := filepath.Rel(d.Root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: key escapes root", ErrInvalidReference)
	}
	return os.Open(full)
}
