package storage

import (
	"context"

	"solana-pool-agent/internal/domain"
)

// DiscoveryStore provides access to pool_discoveries storage.
type DiscoveryStore interface {
	// CreateIfAbsent inserts the record unless pool_id exists.
	// Returns the stored record, or nil when another writer created it first.
	CreateIfAbsent(ctx context.Context, r *domain.PoolDiscoveryRecord) (*domain.PoolDiscoveryRecord, error)

	// GetByPoolID retrieves a record by pool address. Returns ErrNotFound if not exists.
	GetByPoolID(ctx context.Context, poolID string) (*domain.PoolDiscoveryRecord, error)

	// GetByMint retrieves all records for a given mint, ordered by creation_ts ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.PoolDiscoveryRecord, error)
}

// MarketStore provides access to open_markets storage.
type MarketStore interface {
	// CreateIfAbsent inserts the record unless mint exists.
	// Returns the stored record, or nil when another writer created it first.
	CreateIfAbsent(ctx context.Context, m *domain.MarketRecord) (*domain.MarketRecord, error)

	// GetByMint retrieves a market by base mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.MarketRecord, error)
}

// MarkerStore is a durable key-value store of dedup markers. Markers never expire.
type MarkerStore interface {
	// Get returns the marker value. Returns ErrNotFound if the key is unset.
	Get(ctx context.Context, key string) (string, error)

	// SetIfAbsent sets key to value unless it is already set.
	// Reports whether this call set it.
	SetIfAbsent(ctx context.Context, key, value string) (bool, error)

	// Delete removes the marker. Deleting an unset key is not an error.
	Delete(ctx context.Context, key string) error
}

// JournalStore provides access to the rebalance_ticks journal.
type JournalStore interface {
	// Append adds one tick. Returns ErrDuplicateKey if tick_id exists.
	Append(ctx context.Context, t *domain.RebalanceTick) error

	// GetByPair retrieves ticks for a pair within [start, end] (inclusive), ordered by timestamp ASC.
	GetByPair(ctx context.Context, pair string, start, end int64) ([]*domain.RebalanceTick, error)
}
