package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/transparencytube/blobindex/internal/pathutil"
)

// Dir reads files from a local directory tree, for example a dataset
// exported by the producer before it is uploaded.
type Dir struct {
	root string
}

// NewDir creates a Source rooted at the directory root.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source: %s is not a directory", abs)
	}
	return &Dir{root: abs}, nil
}

// Open opens the named file below the root.
func (d *Dir) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := pathutil.Validate(name); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, filepath.FromSlash(name))) //nolint:gosec // name is validated above
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SourceID returns a file:// URL for the root.
func (d *Dir) SourceID() string {
	return "file://" + filepath.ToSlash(d.root)
}
