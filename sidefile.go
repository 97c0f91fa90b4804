package blobindex

import (
	"context"
	"fmt"

	"github.com/transparencytube/blobindex/internal/pathutil"
)

// ReadSideFile reads a JSON-lines file stored next to the manifest, such as
// "periods.jsonl.gz", and decodes each line as T. Compression is detected
// from the content. Side files are not cached.
func ReadSideFile[T, R any](ctx context.Context, s *Store[R], name string) ([]T, error) {
	if err := pathutil.Validate(name); err != nil {
		return nil, err
	}
	full := pathutil.Join(s.prefix, name)
	out, err := readJSONL[T](ctx, s.rows, full)
	if err != nil {
		s.log().Warn("read side file failed",
			"dataset", s.dataset,
			"file", full,
			"error", err)
		return nil, fmt.Errorf("blobindex: side file %s: %w", full, err)
	}
	return out, nil
}
