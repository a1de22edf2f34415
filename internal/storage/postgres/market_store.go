package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

// MarketStore implements storage.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *Pool
}

// NewMarketStore creates a new MarketStore.
func NewMarketStore(pool *Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

const marketColumns = `mint, market_id, bids, asks, event_queue, creation_ts, created_at`

// CreateIfAbsent inserts the market unless mint exists, in which case it returns nil.
func (s *MarketStore) CreateIfAbsent(ctx context.Context, m *domain.MarketRecord) (*domain.MarketRecord, error) {
	if m == nil || m.Mint == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO open_markets (mint, market_id, bids, asks, event_queue, creation_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint) DO NOTHING
		RETURNING ` + marketColumns

	created, err := scanMarket(s.pool.QueryRow(ctx, query,
		m.Mint,
		m.MarketID,
		m.Bids,
		m.Asks,
		m.EventQueue,
		m.CreationTS,
	))
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert open market: %w", err)
	}
	return created, nil
}

// GetByMint retrieves a market by base mint. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByMint(ctx context.Context, mint string) (*domain.MarketRecord, error) {
	query := `SELECT ` + marketColumns + ` FROM open_markets WHERE mint = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open market by mint: %w", err)
	}
	return m, nil
}

func scanMarket(row pgx.Row) (*domain.MarketRecord, error) {
	var m domain.MarketRecord
	err := row.Scan(
		&m.Mint,
		&m.MarketID,
		&m.Bids,
		&m.Asks,
		&m.EventQueue,
		&m.CreationTS,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
