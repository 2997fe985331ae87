package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an ephemeral, thread-safe Sink. It is used by tests and by
// dry runs that want to inspect the generated files without touching disk.
//
// Each file is an independent key in a sync.Map; a write replaces the whole
// value, so concurrent readers see either the old or the new content.
type Memory struct {
	files sync.Map // Key: file name, Value: []byte
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// WriteFile stores a private copy of data under name.
func (m *Memory) WriteFile(_ context.Context, name string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files.Store(name, buf)
	return nil
}

// ReadFile returns a copy of the named file's content.
func (m *Memory) ReadFile(_ context.Context, name string) ([]byte, error) {
	v, ok := m.files.Load(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	data := v.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Exists reports whether name has been written.
func (m *Memory) Exists(_ context.Context, name string) (bool, error) {
	_, ok := m.files.Load(name)
	return ok, nil
}

// Get returns the named file as a string, for assertions.
func (m *Memory) Get(name string) (string, bool) {
	v, ok := m.files.Load(name)
	if !ok {
		return "", false
	}
	return string(v.([]byte)), true
}

// Names returns the sorted names of all stored files.
func (m *Memory) Names() []string {
	var names []string
	m.files.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}
