package clickhouse

import (
	"context"
	"fmt"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

// JournalStore implements storage.JournalStore using ClickHouse.
type JournalStore struct {
	conn *Conn
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(conn *Conn) *JournalStore {
	return &JournalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

const tickColumns = `
	tick_id, pair, timestamp_ms,
	balance0, balance1, price0, price1, value0, value1,
	trade_needed, sell_mint, buy_mint, amount, in_amount, out_amount,
	slippage_bps, executed, outcome, error
`

// Append adds one tick. Returns ErrDuplicateKey if tick_id exists.
// MergeTree does not enforce uniqueness, so the key is checked before insert.
func (s *JournalStore) Append(ctx context.Context, t *domain.RebalanceTick) error {
	if t == nil || t.TickID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, t.TickID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO rebalance_ticks (`+tickColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		t.TickID, t.Pair, uint64(t.Timestamp),
		t.Balance0, t.Balance1, t.Price0, t.Price1, t.Value0, t.Value1,
		t.TradeNeeded, t.SellMint, t.BuyMint, t.Amount, t.InAmount, t.OutAmount,
		int32(t.SlippageBps), t.Executed, t.Outcome, t.Error,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByPair retrieves ticks for a pair within [start, end] (inclusive), ordered by timestamp ASC.
func (s *JournalStore) GetByPair(ctx context.Context, pair string, start, end int64) ([]*domain.RebalanceTick, error) {
	query := `
		SELECT ` + tickColumns + `
		FROM rebalance_ticks
		WHERE pair = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, tick_id ASC
	`

	rows, err := s.conn.Query(ctx, query, pair, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query ticks by pair: %w", err)
	}
	defer rows.Close()

	var ticks []*domain.RebalanceTick
	for rows.Next() {
		var t domain.RebalanceTick
		var timestampMs uint64
		var slippage int32

		err := rows.Scan(
			&t.TickID, &t.Pair, &timestampMs,
			&t.Balance0, &t.Balance1, &t.Price0, &t.Price1, &t.Value0, &t.Value1,
			&t.TradeNeeded, &t.SellMint, &t.BuyMint, &t.Amount, &t.InAmount, &t.OutAmount,
			&slippage, &t.Executed, &t.Outcome, &t.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}

		t.Timestamp = int64(timestampMs)
		t.SlippageBps = int(slippage)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick rows: %w", err)
	}
	return ticks, nil
}

func (s *JournalStore) exists(ctx context.Context, tickID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM rebalance_ticks WHERE tick_id = ?`, tickID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
