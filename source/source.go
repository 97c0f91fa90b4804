// Package source defines where dataset files are read from.
//
// A [Source] maps slash-separated file names, relative to a root, to byte
// streams. Implementations exist for HTTP origins and CDNs
// (package source/http), Amazon S3 (source/s3), MinIO and other
// S3-compatible stores (source/minio), OCI registries (source/oci), local
// directories ([Dir]) and memory ([Memory]).
//
// Sources return raw bytes. Decompression happens in the caller, so a
// source never needs to know whether a file is compressed.
package source

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a file does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). It maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Source reads named files from a blob root.
// Implementations must be safe for concurrent use.
type Source interface {
	// Open returns a reader for the named file. The caller must close it.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// SourceID returns a stable identifier for the root, used to derive
	// file locations and cache keys. For URL-addressed sources it is the
	// root URL.
	SourceID() string
}

// ReadAll opens name on src and reads it to the end.
func ReadAll(ctx context.Context, src Source, name string) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// IsNotFound reports whether err indicates a missing file.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
