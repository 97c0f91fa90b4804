package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencytube/blobindex/internal/pathutil"
)

func TestMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory("")
	assert.Equal(t, "memory:", m.SourceID())

	data := []byte("hello")
	m.Put("a/b.jsonl", data)
	data[0] = 'X' // must not leak into the store

	got, err := ReadAll(ctx, m, "a/b.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = m.Open(ctx, "missing")
	assert.True(t, IsNotFound(err))

	m.Put("a/c.jsonl", nil)
	m.Put("b/d.jsonl", nil)
	assert.Equal(t, []string{"a/b.jsonl", "a/c.jsonl"}, m.Names("a/"))

	m.Delete("a/c.jsonl")
	assert.Equal(t, []string{"a/b.jsonl"}, m.Names("a/"))
}

func TestMemoryCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemory("mem")
	m.Put("x", []byte("x"))
	_, err := m.Open(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "results", "v2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "results", "v2", "index.json.gz"), []byte("{}"), 0o644))

	d, err := NewDir(root)
	require.NoError(t, err)
	assert.Contains(t, d.SourceID(), "file://")

	got, err := ReadAll(context.Background(), d, "results/v2/index.json.gz")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	_, err = d.Open(context.Background(), "results/v2/missing")
	assert.True(t, IsNotFound(err))

	_, err = d.Open(context.Background(), "../outside")
	require.ErrorIs(t, err, pathutil.ErrInvalidName)
}

func TestNewDirErrors(t *testing.T) {
	t.Parallel()

	_, err := NewDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewDir(file)
	require.Error(t, err)
}
