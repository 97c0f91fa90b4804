package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Source, mostly useful in tests.
// It is safe for concurrent reads and writes.
type Memory struct {
	mu    sync.RWMutex
	id    string
	files map[string][]byte
}

// NewMemory creates an empty in-memory source identified by id.
func NewMemory(id string) *Memory {
	if id == "" {
		id = "memory:"
	}
	return &Memory{
		id:    id,
		files: make(map[string][]byte),
	}
}

// Put stores data under name, replacing any previous content.
func (m *Memory) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Copy to prevent external mutation
	copied := make([]byte, len(data))
	copy(copied, data)
	m.files[name] = copied
}

// Delete removes name. Missing names are ignored.
func (m *Memory) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
}

// Names returns the stored names with the given prefix, sorted.
func (m *Memory) Names(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Open returns a reader over a copy of the named file.
func (m *Memory) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// SourceID returns the identifier passed to NewMemory.
func (m *Memory) SourceID() string {
	return m.id
}
