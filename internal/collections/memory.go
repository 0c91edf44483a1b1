package collections

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps collections in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	history     map[string][]HistoryEntry
	order       []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*Collection),
		history:     make(map[string][]HistoryEntry),
	}
}

func (s *MemoryStore) Create(_ context.Context, c *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[c.Metadata.ID]; ok {
		return fmt.Errorf("collection %s already exists", c.Metadata.ID)
	}
	s.collections[c.Metadata.ID] = copyCollection(c)
	s.history[c.Metadata.ID] = nil
	s.order = append(s.order, c.Metadata.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyCollection(c), nil
}

func (s *MemoryStore) Replace(_ context.Context, c *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[c.Metadata.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, c.Metadata.ID)
	}
	s.collections[c.Metadata.ID] = copyCollection(c)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.collections, id)
	delete(s.history, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Metadata, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneMetadata(s.collections[id].Metadata))
	}
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, id string, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.history[id] = append(s.history[id], entry)
	return nil
}

func (s *MemoryStore) History(_ context.Context, id string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.collections[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return append([]HistoryEntry{}, s.history[id]...), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func copyCollection(c *Collection) *Collection {
	return &Collection{Metadata: cloneMetadata(c.Metadata), Table: c.Table.Clone()}
}
