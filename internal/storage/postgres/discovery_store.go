package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

// DiscoveryStore implements storage.DiscoveryStore using PostgreSQL.
type DiscoveryStore struct {
	pool *Pool
}

// NewDiscoveryStore creates a new DiscoveryStore.
func NewDiscoveryStore(pool *Pool) *DiscoveryStore {
	return &DiscoveryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DiscoveryStore = (*DiscoveryStore)(nil)

const discoveryColumns = `pool_id, mint, name, symbol, is_amm, creation_ts, created_at`

// CreateIfAbsent inserts the record unless pool_id exists.
// A conflicting insert returns no row, reported as a nil record.
func (s *DiscoveryStore) CreateIfAbsent(ctx context.Context, r *domain.PoolDiscoveryRecord) (*domain.PoolDiscoveryRecord, error) {
	if r == nil || r.PoolID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pool_discoveries (pool_id, mint, name, symbol, is_amm, creation_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pool_id) DO NOTHING
		RETURNING ` + discoveryColumns

	row := s.pool.QueryRow(ctx, query,
		r.PoolID,
		r.Mint,
		r.Name,
		r.Symbol,
		r.IsAmm,
		r.CreationTS,
	)
	created, err := scanDiscovery(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert pool discovery: %w", err)
	}
	return created, nil
}

// GetByPoolID retrieves a record by pool address. Returns ErrNotFound if not exists.
func (s *DiscoveryStore) GetByPoolID(ctx context.Context, poolID string) (*domain.PoolDiscoveryRecord, error) {
	query := `SELECT ` + discoveryColumns + ` FROM pool_discoveries WHERE pool_id = $1`

	r, err := scanDiscovery(s.pool.QueryRow(ctx, query, poolID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool discovery by id: %w", err)
	}
	return r, nil
}

// GetByMint retrieves all records for a given mint, ordered by creation_ts ASC.
func (s *DiscoveryStore) GetByMint(ctx context.Context, mint string) ([]*domain.PoolDiscoveryRecord, error) {
	query := `
		SELECT ` + discoveryColumns + `
		FROM pool_discoveries
		WHERE mint = $1
		ORDER BY creation_ts ASC, pool_id ASC
	`

	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("get pool discoveries by mint: %w", err)
	}
	defer rows.Close()

	var result []*domain.PoolDiscoveryRecord
	for rows.Next() {
		r, err := scanDiscovery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool discovery row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pool discovery rows: %w", err)
	}
	return result, nil
}

func scanDiscovery(row pgx.Row) (*domain.PoolDiscoveryRecord, error) {
	var r domain.PoolDiscoveryRecord
	err := row.Scan(
		&r.PoolID,
		&r.Mint,
		&r.Name,
		&r.Symbol,
		&r.IsAmm,
		&r.CreationTS,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
