// Package manifest decodes the index document that describes a sharded,
// pre-sorted dataset: the ordered list of shard files with their key bounds,
// and per-column metadata.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/transparencytube/blobindex/key"
)

// FileName is the name of the manifest within a dataset version.
const FileName = "index.json.gz"

// ErrInvalid is returned when a manifest is structurally unusable.
var ErrInvalid = errors.New("manifest: invalid")

// Manifest describes one versioned dataset.
type Manifest struct {
	KeyFiles []KeyFile `json:"keyFiles"`
	Cols     []Column  `json:"cols"`
}

// KeyFile describes one shard: its file name and the keys of the first and
// last rows it stores.
type KeyFile struct {
	File  string  `json:"file"`
	First key.Key `json:"first"`
	Last  key.Key `json:"last"`
}

// Column describes one column of the dataset.
type Column struct {
	Name     string   `json:"name"`
	InIndex  bool     `json:"inIndex"`
	DBName   string   `json:"dbName,omitempty"`
	Distinct []string `json:"distinct,omitempty"`
	Min      string   `json:"min,omitempty"`
	Max      string   `json:"max,omitempty"`
}

// Decode reads and validates a manifest from r. The reader must yield
// plain JSON; decompression is the caller's concern.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that every shard names a file and every column has a name.
func (m *Manifest) Validate() error {
	for i, kf := range m.KeyFiles {
		if kf.File == "" {
			return fmt.Errorf("%w: keyFiles[%d] has no file", ErrInvalid, i)
		}
	}
	seen := make(map[string]struct{}, len(m.Cols))
	for i, c := range m.Cols {
		if c.Name == "" {
			return fmt.Errorf("%w: cols[%d] has no name", ErrInvalid, i)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalid, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// ColumnsByName returns a lookup of the columns keyed by name.
func (m *Manifest) ColumnsByName() map[string]Column {
	cols := make(map[string]Column, len(m.Cols))
	for _, c := range m.Cols {
		cols[c.Name] = c
	}
	return cols
}

// KeyFields returns the names of the key columns.
//
// Columns flagged inIndex are returned in column order. If no column is
// flagged, the field order of the first shard's lower bound is used.
func (m *Manifest) KeyFields() []string {
	var fields []string
	for _, c := range m.Cols {
		if c.InIndex {
			fields = append(fields, c.Name)
		}
	}
	if len(fields) > 0 || len(m.KeyFiles) == 0 {
		return fields
	}
	return m.KeyFiles[0].First.Names()
}

// Disorder describes a place where shard bounds are not in key order.
type Disorder struct {
	Index  int
	File   string
	Reason string
}

// CheckOrder reports shards whose bounds break the sort invariant: a shard
// whose first key sorts after its last key, or a shard whose first key sorts
// before the previous shard's last key.
//
// The producer is trusted to keep shards sorted; this is a diagnostic, not a
// precondition for queries.
func (m *Manifest) CheckOrder() []Disorder {
	var out []Disorder
	for i, kf := range m.KeyFiles {
		if key.Compare(kf.First, kf.Last) > 0 {
			out = append(out, Disorder{Index: i, File: kf.File, Reason: "first sorts after last"})
		}
		if i > 0 && key.Compare(kf.First, m.KeyFiles[i-1].Last) < 0 {
			out = append(out, Disorder{Index: i, File: kf.File, Reason: "first sorts before previous last"})
		}
	}
	return out
}
