package blobindex

import (
	"errors"
	"fmt"

	"github.com/transparencytube/blobindex/internal/manifest"
	"github.com/transparencytube/blobindex/source"
)

var (
	// ErrManifest is returned by Open when the manifest cannot be fetched,
	// decompressed or decoded. The underlying cause is wrapped alongside it.
	ErrManifest = errors.New("blobindex: load manifest")

	// ErrNoSource is returned when neither a root nor explicit sources are
	// configured.
	ErrNoSource = errors.New("blobindex: no source configured")

	// ErrInvalidFilter is returned when a filter cannot be evaluated.
	ErrInvalidFilter = errors.New("blobindex: invalid filter")

	// ErrInvalidOption is returned when an option value is unusable.
	ErrInvalidOption = errors.New("blobindex: invalid option")
)

// Errors re-exported from internal packages and sources.
var (
	// ErrInvalidManifest is returned when the manifest decodes but is
	// structurally unusable. It is always accompanied by ErrManifest.
	ErrInvalidManifest = manifest.ErrInvalid

	// ErrNotFound is returned when a file does not exist at the source.
	ErrNotFound = source.ErrNotFound
)

// ShardError records a shard that could not be loaded during a query.
// The shard contributes no rows to the result.
type ShardError struct {
	File string
	Err  error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("blobindex: shard %s: %v", e.File, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }
