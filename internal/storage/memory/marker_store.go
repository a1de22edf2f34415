package memory

import (
	"context"
	"sync"

	"solana-pool-agent/internal/storage"
)

// MarkerStore is an in-memory implementation of storage.MarkerStore.
type MarkerStore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMarkerStore creates a new in-memory marker store.
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{
		data: make(map[string]string),
	}
}

// Compile-time interface check.
var _ storage.MarkerStore = (*MarkerStore)(nil)

// Get returns the marker value. Returns ErrNotFound if the key is unset.
func (s *MarkerStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// SetIfAbsent sets key to value unless it is already set.
func (s *MarkerStore) SetIfAbsent(_ context.Context, key, value string) (bool, error) {
	if key == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value
	return true, nil
}

// Delete removes the marker.
func (s *MarkerStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}
