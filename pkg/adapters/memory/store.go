package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/crosschain/pkg/domain"
)

// Store implements ports.StateBackend in memory.
// Safe for concurrent use. Values are stored as given; callers that share
// mutable values (maps, slices) across chains should treat them as read-only.
type Store struct {
	data map[string]any
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]any),
	}
}

// Store writes the value in memory.
func (s *Store) Store(ctx context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Load retrieves the value from memory.
func (s *Store) Load(ctx context.Context, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, domain.ErrUnknownKey
	}
	return v, nil
}

// Remove deletes the value.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Keys returns the stored keys, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
