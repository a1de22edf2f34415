package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/observability"
	"solana-pool-agent/internal/storage"
)

// OpenBook MarketStateV3 layout. Offsets are absolute and include the 5-byte "serum" head padding.
const (
	MarketStateV3Size = 388

	marketOwnAddressAt = 13
	marketBaseMintAt   = 53
	marketQuoteMintAt  = 85
	marketEventQueueAt = 253
	marketBidsAt       = 285
	marketAsksAt       = 317
)

// MarketUpdate is one order-book market account change.
type MarketUpdate struct {
	Pubkey string
	Slot   int64
	Data   []byte
}

// MarketState holds the decoded fields of a market account the agent keeps.
type MarketState struct {
	OwnAddress string
	BaseMint   string
	QuoteMint  string
	EventQueue string
	Bids       string
	Asks       string
}

// DecodeMarketState decodes the fixed-offset MarketStateV3 fields.
func DecodeMarketState(data []byte) (*MarketState, error) {
	if len(data) != MarketStateV3Size {
		return nil, fmt.Errorf("market state size %d, want %d", len(data), MarketStateV3Size)
	}
	key := func(at int) string {
		return base58.Encode(data[at : at+32])
	}
	return &MarketState{
		OwnAddress: key(marketOwnAddressAt),
		BaseMint:   key(marketBaseMintAt),
		QuoteMint:  key(marketQuoteMintAt),
		EventQueue: key(marketEventQueueAt),
		Bids:       key(marketBidsAt),
		Asks:       key(marketAsksAt),
	}, nil
}

// OnMarketUpdate records a market the first time its base mint is seen. Idempotent.
func (p *Pipeline) OnMarketUpdate(ctx context.Context, u MarketUpdate) error {
	state, err := DecodeMarketState(u.Data)
	if err != nil {
		observability.RecordMarketOutcome(observability.OutcomeSkipped)
		return fmt.Errorf("decode market %s: %w", u.Pubkey, err)
	}

	marketID := state.OwnAddress
	if u.Pubkey != "" {
		marketID = u.Pubkey
	}

	key := storage.MarketMarkerKey(state.BaseMint)
	won, err := p.gate(ctx, key)
	if err != nil {
		observability.RecordMarketOutcome(observability.OutcomeError)
		return err
	}
	if !won {
		observability.RecordMarketOutcome(observability.OutcomeMarked)
		return nil
	}

	record := &domain.MarketRecord{
		Mint:       state.BaseMint,
		MarketID:   marketID,
		Bids:       state.Bids,
		Asks:       state.Asks,
		EventQueue: state.EventQueue,
		CreationTS: p.now().UnixMilli(),
	}

	created, err := p.markets.CreateIfAbsent(ctx, record)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		p.release(key)
		observability.RecordMarketOutcome(observability.OutcomeError)
		return fmt.Errorf("create market %s: %w", state.BaseMint, err)
	}
	if created == nil {
		observability.RecordMarketOutcome(observability.OutcomeDuplicate)
		return nil
	}

	observability.RecordMarketOutcome(observability.OutcomeCreated)
	p.logger.Info().
		Str("mint", record.Mint).
		Str("market", record.MarketID).
		Int64("slot", u.Slot).
		Msg("open market recorded")
	return nil
}
