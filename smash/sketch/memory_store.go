package sketch

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore is an in-memory Store used by tests and by callers that already
// hold deserialized sketches.
type MemoryStore struct {
	mu       sync.Mutex
	sketches []ReferenceSketch
	names    map[string]struct{}
}

// NewMemoryStore creates a store holding sketches. Duplicate names are
// rejected the same way InsertSketch rejects them.
func NewMemoryStore(sketches ...ReferenceSketch) (*MemoryStore, error) {
	m := &MemoryStore{names: make(map[string]struct{})}
	for _, s := range sketches {
		if err := m.InsertSketch(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InsertSketch appends a sketch. Names must be unique within the store.
func (m *MemoryStore) InsertSketch(s ReferenceSketch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.names[s.InputFileName]; exists {
		return errors.Errorf("sketch %s already exists", s.InputFileName)
	}
	m.names[s.InputFileName] = struct{}{}
	m.sketches = append(m.sketches, cloneSketch(s))
	return nil
}

// LoadSketches returns copies of the stored sketches in insertion order.
func (m *MemoryStore) LoadSketches(ctx context.Context) ([]ReferenceSketch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ReferenceSketch, len(m.sketches))
	for i, s := range m.sketches {
		out[i] = cloneSketch(s)
	}
	return out, nil
}

func cloneSketch(s ReferenceSketch) ReferenceSketch {
	kmers := make([]string, len(s.Kmers))
	copy(kmers, s.Kmers)
	s.Kmers = kmers
	return s
}
