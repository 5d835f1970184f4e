package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/docsql/internal/ir"
)

// Memory keeps schema versions in a map. Graphs are stored serialized, so
// callers never share a graph with the store.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	schemas map[string][]record
	runID   func() (string, error)
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{schemas: make(map[string][]record), runID: newRunID}
}

// Load returns the latest version of a schema.
func (m *Memory) Load(_ context.Context, name string) (*ir.Schema, bool, error) {
	m.mu.Lock()
	recs := m.schemas[name]
	m.mu.Unlock()
	if len(recs) == 0 {
		return nil, false, nil
	}
	last := recs[len(recs)-1]
	s, err := decodeSchema(last.Format, last.Body)
	if err != nil {
		return nil, false, fmt.Errorf("load schema %q: %w", name, err)
	}
	return s, true, nil
}

// Save appends a version unless the latest one has the same hash.
func (m *Memory) Save(_ context.Context, name string, s *ir.Schema) (Version, error) {
	body, hash, err := encodeSchema(s)
	if err != nil {
		return Version{}, fmt.Errorf("save schema %q: %w", name, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.schemas[name]
	var next int
	if len(recs) > 0 {
		last := recs[len(recs)-1]
		if last.Hash == hash {
			return last.Version, nil
		}
		next = last.Number
	}
	runID, err := m.runID()
	if err != nil {
		return Version{}, fmt.Errorf("save schema %q: run id: %w", name, err)
	}
	v := Version{Name: name, Number: next + 1, RunID: runID, Hash: hash}
	m.schemas[name] = append(recs, record{Version: v, Format: ir.SchemaFormatVersion, Body: body})
	return v, nil
}

// Remove deletes every version of a schema.
func (m *Memory) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[name]; !ok {
		return fmt.Errorf("remove schema %q: %w", name, ErrNotFound)
	}
	delete(m.schemas, name)
	return nil
}

// Versions lists the versions of a schema, oldest first.
func (m *Memory) Versions(_ context.Context, name string) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Version{}
	for _, r := range m.schemas[name] {
		out = append(out, r.Version)
	}
	return out, nil
}

// LoadVersion returns one version of a schema.
func (m *Memory) LoadVersion(_ context.Context, name string, number int) (*ir.Schema, error) {
	m.mu.Lock()
	recs := m.schemas[name]
	m.mu.Unlock()
	for _, r := range recs {
		if r.Number == number {
			return decodeSchema(r.Format, r.Body)
		}
	}
	return nil, fmt.Errorf("load schema %q version %d: %w", name, number, ErrNotFound)
}

// List returns the latest version of every schema, ordered by name.
func (m *Memory) List(_ context.Context) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Version{}
	for _, recs := range m.schemas {
		out = append(out, recs[len(recs)-1].Version)
	}
	slices.SortFunc(out, func(a, b Version) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

var (
	_ Store   = (*Memory)(nil)
	_ History = (*Memory)(nil)
)
