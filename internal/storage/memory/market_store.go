package memory

import (
	"context"
	"sync"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

// MarketStore is an in-memory implementation of storage.MarketStore.
type MarketStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MarketRecord // keyed by mint
}

// NewMarketStore creates a new in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		data: make(map[string]*domain.MarketRecord),
	}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

// CreateIfAbsent inserts the market unless mint exists, in which case it returns nil.
func (s *MarketStore) CreateIfAbsent(_ context.Context, m *domain.MarketRecord) (*domain.MarketRecord, error) {
	if m == nil || m.Mint == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.Mint]; exists {
		return nil, nil
	}

	marketCopy := *m
	s.data[m.Mint] = &marketCopy

	out := marketCopy
	return &out, nil
}

// GetByMint retrieves a market by base mint. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByMint(_ context.Context, mint string) (*domain.MarketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	marketCopy := *m
	return &marketCopy, nil
}

// Count returns the number of stored markets.
func (s *MarketStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
