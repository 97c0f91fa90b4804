package blobindex

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/transparencytube/blobindex/internal/manifest"
	"github.com/transparencytube/blobindex/key"
	"github.com/transparencytube/blobindex/source"
)

const testDataset = "ds"

// testShard is one shard of a fixture dataset.
type testShard struct {
	file        string
	first, last key.Key
	rows        []Record
}

// gzipBytes compresses data the way the producer does.
func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// jsonLines encodes rows as newline-delimited JSON.
func jsonLines(t *testing.T, rows []Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		require.NoError(t, enc.Encode(r))
	}
	return buf.Bytes()
}

// writeDataset stores a gzipped manifest and shards for testDataset/v2 in
// mem and returns the manifest.
func writeDataset(t *testing.T, mem *source.Memory, cols []Column, shards ...testShard) *manifest.Manifest {
	t.Helper()
	m := &manifest.Manifest{Cols: cols}
	for _, s := range shards {
		m.KeyFiles = append(m.KeyFiles, manifest.KeyFile{File: s.file, First: s.first, Last: s.last})
		mem.Put(testDataset+"/v2/"+s.file, gzipBytes(t, jsonLines(t, s.rows)))
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	mem.Put(testDataset+"/v2/"+manifest.FileName, gzipBytes(t, data))
	return m
}

// countingSource wraps a Source, counting opens per name and failing the
// names listed in fail.
type countingSource struct {
	source.Source

	mu    sync.Mutex
	opens map[string]int
	fail  map[string]error
	gate  chan struct{} // when non-nil, Open blocks until it is closed or ctx ends
}

func newCountingSource(src source.Source) *countingSource {
	return &countingSource{
		Source: src,
		opens:  make(map[string]int),
		fail:   make(map[string]error),
	}
}

func (c *countingSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	c.opens[name]++
	err := c.fail[name]
	gate := c.gate
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return c.Source.Open(ctx, name)
}

func (c *countingSource) failWith(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[name] = err
}

func (c *countingSource) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens[name]
}

func (c *countingSource) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.opens {
		n += v
	}
	return n
}

// openRecords opens testDataset over mem with a counting row source.
func openRecords(t *testing.T, mem *source.Memory, opts ...Option) (*Store[Record], *countingSource) {
	t.Helper()
	rows := newCountingSource(mem)
	opts = append([]Option{WithSources(mem, rows)}, opts...)
	s, err := OpenRecords(context.Background(), testDataset, opts...)
	require.NoError(t, err)
	return s, rows
}

// shardName returns the full source name of a shard in testDataset.
func shardName(file string) string {
	return testDataset + "/v2/" + file
}

// field returns the named field of each row, in order.
func field(rows []Record, name string) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[name]
	}
	return out
}
