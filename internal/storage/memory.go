package storage

import (
	"sync"

	"github.com/funnyzak/gqltap/pkg/inspect"
)

// MemoryStore keeps the session rows in a bounded in-memory buffer. When full,
// the oldest row is dropped.
type MemoryStore struct {
	mu    sync.RWMutex
	max   int
	items []*inspect.Row
}

// NewMemoryStore creates a MemoryStore with the provided capacity.
func NewMemoryStore(max int) *MemoryStore {
	if max < 1 {
		max = 1
	}
	return &MemoryStore{
		max:   max,
		items: make([]*inspect.Row, 0, min(max, 256)),
	}
}

// Add appends row, evicting the oldest entry when the buffer is full.
func (s *MemoryStore) Add(row *inspect.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) >= s.max {
		copy(s.items, s.items[1:])
		s.items[len(s.items)-1] = row
		return nil
	}
	s.items = append(s.items, row)
	return nil
}

// List returns filtered rows in arrival order along with the total match count.
func (s *MemoryStore) List(opts ListOptions) ([]*inspect.Row, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := s.filter(opts)
	start, end := paginate(len(filtered), opts.Limit, opts.Offset)
	return filtered[start:end], len(filtered), nil
}

// Iterate calls fn for every matching row until fn returns false.
func (s *MemoryStore) Iterate(opts ListOptions, fn func(*inspect.Row) bool) error {
	s.mu.RLock()
	rows := s.filter(opts)
	s.mu.RUnlock()

	for _, row := range rows {
		if !fn(row) {
			break
		}
	}
	return nil
}

// Snapshot returns every stored row.
func (s *MemoryStore) Snapshot() ([]*inspect.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*inspect.Row, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Get locates a row by id.
func (s *MemoryStore) Get(id string) (*inspect.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].ID == id {
			return s.items[i], nil
		}
	}
	return nil, ErrNotFound
}

// Len returns the number of stored rows.
func (s *MemoryStore) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}

// Clear drops every row.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = s.items[:0]
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return s.Clear()
}

func (s *MemoryStore) filter(opts ListOptions) []*inspect.Row {
	search := normalizeSearch(opts.Search)
	filtered := make([]*inspect.Row, 0, len(s.items))
	for _, item := range s.items {
		if opts.Category != "" && item.Category != opts.Category {
			continue
		}
		if !matchesSearch(item, search) {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}
