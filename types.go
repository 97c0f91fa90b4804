package blobindex

import (
	"github.com/transparencytube/blobindex/internal/manifest"
	"github.com/transparencytube/blobindex/key"
)

// Types re-exported from internal/manifest.
type (
	// Manifest describes a versioned dataset: its shards and columns.
	Manifest = manifest.Manifest

	// KeyFile describes one shard and the key bounds of the rows it holds.
	KeyFile = manifest.KeyFile

	// Column describes one dataset column.
	Column = manifest.Column

	// Disorder reports shard bounds that break the sort order.
	Disorder = manifest.Disorder
)

// KeyFunc projects a row onto its index key. The returned key lists the
// key fields in index order; fields the row lacks may be omitted.
type KeyFunc[R any] func(R) key.Key

// Record is a schemaless row decoded from a JSON object.
type Record = map[string]any
