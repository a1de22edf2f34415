package memory

import (
	"context"
	"sort"
	"sync"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

// JournalStore is an in-memory implementation of storage.JournalStore.
type JournalStore struct {
	mu    sync.RWMutex
	ticks []*domain.RebalanceTick
	ids   map[string]struct{}
}

// NewJournalStore creates a new in-memory journal.
func NewJournalStore() *JournalStore {
	return &JournalStore{
		ids: make(map[string]struct{}),
	}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append adds one tick. Returns ErrDuplicateKey if tick_id exists.
func (s *JournalStore) Append(_ context.Context, t *domain.RebalanceTick) error {
	if t == nil || t.TickID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[t.TickID]; exists {
		return storage.ErrDuplicateKey
	}

	tickCopy := *t
	s.ticks = append(s.ticks, &tickCopy)
	s.ids[t.TickID] = struct{}{}
	return nil
}

// GetByPair retrieves ticks for a pair within [start, end] (inclusive), ordered by timestamp ASC.
func (s *JournalStore) GetByPair(_ context.Context, pair string, start, end int64) ([]*domain.RebalanceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RebalanceTick
	for _, t := range s.ticks {
		if t.Pair == pair && t.Timestamp >= start && t.Timestamp <= end {
			tickCopy := *t
			result = append(result, &tickCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// All returns a copy of every tick in append order.
func (s *JournalStore) All() []*domain.RebalanceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RebalanceTick, 0, len(s.ticks))
	for _, t := range s.ticks {
		tickCopy := *t
		result = append(result, &tickCopy)
	}
	return result
}
