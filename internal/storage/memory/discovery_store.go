package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

// DiscoveryStore is an in-memory implementation of storage.DiscoveryStore.
type DiscoveryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PoolDiscoveryRecord // keyed by pool_id
}

// NewDiscoveryStore creates a new in-memory discovery store.
func NewDiscoveryStore() *DiscoveryStore {
	return &DiscoveryStore{
		data: make(map[string]*domain.PoolDiscoveryRecord),
	}
}

// Compile-time interface check.
var _ storage.DiscoveryStore = (*DiscoveryStore)(nil)

// CreateIfAbsent inserts the record unless pool_id exists, in which case it returns nil.
func (s *DiscoveryStore) CreateIfAbsent(_ context.Context, r *domain.PoolDiscoveryRecord) (*domain.PoolDiscoveryRecord, error) {
	if r == nil || r.PoolID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.PoolID]; exists {
		return nil, nil
	}

	// Store a copy to prevent external mutation
	recordCopy := *r
	s.data[r.PoolID] = &recordCopy

	out := recordCopy
	return &out, nil
}

// GetByPoolID retrieves a record by pool address. Returns ErrNotFound if not exists.
func (s *DiscoveryStore) GetByPoolID(_ context.Context, poolID string) (*domain.PoolDiscoveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[poolID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// GetByMint retrieves all records for a given mint, ordered by creation_ts ASC.
func (s *DiscoveryStore) GetByMint(_ context.Context, mint string) ([]*domain.PoolDiscoveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PoolDiscoveryRecord
	for _, r := range s.data {
		if r.Mint == mint {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreationTS != result[j].CreationTS {
			return result[i].CreationTS < result[j].CreationTS
		}
		return result[i].PoolID < result[j].PoolID
	})

	return result, nil
}

// Count returns the number of stored records.
func (s *DiscoveryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
