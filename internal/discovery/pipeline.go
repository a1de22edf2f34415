// Package discovery turns pool-creation candidates into exactly one persisted record per pool.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/metadata"
	"solana-pool-agent/internal/observability"
	"solana-pool-agent/internal/solana"
	"solana-pool-agent/internal/storage"
)

// Transaction fetch retry defaults.
const (
	DefaultFetchAttempts = 3
	DefaultFetchBackoff  = 500 * time.Millisecond
)

// ErrTransactionNotFound is returned when the node never returns the candidate transaction.
var ErrTransactionNotFound = errors.New("transaction not found")

// Candidate is a log notification that matched a pool-creation marker.
type Candidate struct {
	Signature   string
	ProgramID   string
	Instruction string // matched marker; empty selects the program's first layout
	IsAmm       bool
	Slot        int64
}

// TransactionFetcher is the RPC subset the pipeline needs.
type TransactionFetcher interface {
	GetParsedTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error)
}

// PipelineOptions configures Pipeline.
type PipelineOptions struct {
	Layouts       *LayoutTable
	Seen          *SeenSet
	FetchAttempts int
	FetchBackoff  time.Duration
	Now           func() time.Time
	Logger        *zerolog.Logger
}

// Pipeline is the two-tier dedup and persistence path for pools and markets.
type Pipeline struct {
	rpc      TransactionFetcher
	markers  storage.MarkerStore
	pools    storage.DiscoveryStore
	markets  storage.MarketStore
	metadata metadata.Fetcher

	layouts  *LayoutTable
	seen     *SeenSet
	attempts int
	backoff  time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPipeline creates a discovery pipeline.
func NewPipeline(
	rpc TransactionFetcher,
	markers storage.MarkerStore,
	pools storage.DiscoveryStore,
	markets storage.MarketStore,
	meta metadata.Fetcher,
	opts PipelineOptions,
) *Pipeline {
	p := &Pipeline{
		rpc:      rpc,
		markers:  markers,
		pools:    pools,
		markets:  markets,
		metadata: meta,
		layouts:  opts.Layouts,
		seen:     opts.Seen,
		attempts: opts.FetchAttempts,
		backoff:  opts.FetchBackoff,
		now:      opts.Now,
		logger:   zerolog.Nop(),
	}
	if p.layouts == nil {
		p.layouts = NewDefaultLayoutTable()
	}
	if p.seen == nil {
		p.seen = NewSeenSet()
	}
	if p.attempts <= 0 {
		p.attempts = DefaultFetchAttempts
	}
	if p.backoff <= 0 {
		p.backoff = DefaultFetchBackoff
	}
	if p.now == nil {
		p.now = time.Now
	}
	if opts.Logger != nil {
		p.logger = opts.Logger.With().Str("component", "discovery").Logger()
	}
	return p
}

// Layouts returns the pipeline's layout table.
func (p *Pipeline) Layouts() *LayoutTable {
	return p.layouts
}

// OnCandidate resolves the candidate's pool and records it once. Safe for concurrent use;
// repeated or concurrent calls for one pool create at most one record.
func (p *Pipeline) OnCandidate(ctx context.Context, c Candidate) error {
	layout, ok := p.layouts.Lookup(c.ProgramID, c.Instruction)
	if !ok {
		observability.RecordPoolOutcome(observability.OutcomeSkipped)
		return fmt.Errorf("no layout for program %s instruction %q", c.ProgramID, c.Instruction)
	}

	tx, err := p.fetchTransaction(ctx, c.Signature)
	if err != nil {
		observability.RecordPoolOutcome(observability.OutcomeError)
		return fmt.Errorf("fetch transaction %s: %w", c.Signature, err)
	}

	accounts := instructionAccounts(tx, c.ProgramID)
	if accounts == nil {
		observability.RecordPoolOutcome(observability.OutcomeSkipped)
		p.logger.Debug().Str("signature", c.Signature).Str("program", c.ProgramID).Msg("no matching instruction")
		return nil
	}

	pool, err := layout.Extract(accounts)
	if err != nil {
		observability.RecordPoolOutcome(observability.OutcomeSkipped)
		return fmt.Errorf("extract pool accounts from %s: %w", c.Signature, err)
	}

	if !p.seen.CheckAndInsert(pool.PoolID) {
		observability.RecordPoolOutcome(observability.OutcomeSeen)
		return nil
	}

	outcome, err := p.recordPool(ctx, pool.PoolID, pool.MintA, layout.IsAmm)
	observability.RecordPoolOutcome(outcome)
	if err != nil {
		p.seen.Remove(pool.PoolID)
		return err
	}
	if outcome == observability.OutcomeCreated {
		p.logger.Info().
			Str("pool", pool.PoolID).
			Str("mint", pool.MintA).
			Str("mint_b", pool.MintB).
			Bool("amm", layout.IsAmm).
			Str("signature", c.Signature).
			Msg("pool discovered")
	}
	return nil
}

// recordPool is the marker-gated create-if-absent step shared by live discovery and seeding.
// It returns the pipeline outcome label.
func (p *Pipeline) recordPool(ctx context.Context, poolID, mint string, isAmm bool) (string, error) {
	key := storage.PoolMarkerKey(poolID)
	won, err := p.gate(ctx, key)
	if err != nil {
		return observability.OutcomeError, err
	}
	if !won {
		return observability.OutcomeMarked, nil
	}

	record := &domain.PoolDiscoveryRecord{
		PoolID:     poolID,
		Mint:       mint,
		IsAmm:      isAmm,
		CreationTS: p.now().UnixMilli(),
	}
	record.Name, record.Symbol = p.lookupNames(ctx, mint)

	created, err := p.pools.CreateIfAbsent(ctx, record)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		p.release(key)
		return observability.OutcomeError, fmt.Errorf("create pool %s: %w", poolID, err)
	}
	if created == nil {
		return observability.OutcomeDuplicate, nil
	}
	return observability.OutcomeCreated, nil
}

// gate checks the durable marker and claims it. It reports whether this caller owns the key.
func (p *Pipeline) gate(ctx context.Context, key string) (bool, error) {
	v, err := p.markers.Get(ctx, key)
	switch {
	case err == nil && v == storage.MarkerAdded:
		return false, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return false, fmt.Errorf("get marker %s: %w", key, err)
	}

	won, err := p.markers.SetIfAbsent(ctx, key, storage.MarkerAdded)
	if err != nil {
		return false, fmt.Errorf("set marker %s: %w", key, err)
	}
	return won, nil
}

// release drops a claimed marker after a failed write. It runs on a fresh context
// so cancellation of the caller does not leave the key claimed.
func (p *Pipeline) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.markers.Delete(ctx, key); err != nil {
		p.logger.Error().Err(err).Str("key", key).Msg("failed to release marker")
	}
}

// lookupNames resolves name and symbol, falling back to placeholders.
func (p *Pipeline) lookupNames(ctx context.Context, mint string) (string, string) {
	name, symbol := domain.UndefinedName, domain.UndefinedName
	if p.metadata == nil {
		return name, symbol
	}
	meta, err := p.metadata.FetchMetadata(ctx, mint)
	if err != nil || meta == nil {
		p.logger.Warn().Err(err).Str("mint", mint).Msg("metadata lookup failed")
		return name, symbol
	}
	if meta.Name != nil {
		name = *meta.Name
	}
	if meta.Symbol != nil {
		symbol = *meta.Symbol
	}
	return name, symbol
}

// fetchTransaction retries transport errors and not-yet-visible transactions with
// exponential backoff: backoff, 2*backoff, 4*backoff.
func (p *Pipeline) fetchTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error) {
	lastErr := ErrTransactionNotFound
	for attempt := 0; attempt < p.attempts; attempt++ {
		tx, err := p.rpc.GetParsedTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		if err != nil {
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == p.attempts-1 {
			break
		}

		delay := p.backoff * time.Duration(1<<attempt)
		p.logger.Debug().
			Err(lastErr).
			Str("signature", signature).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("retrying getTransaction")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// instructionAccounts returns the account list of the first top-level instruction of programID.
func instructionAccounts(tx *solana.ParsedTransaction, programID string) []string {
	for _, ix := range tx.Instructions {
		if ix.ProgramID == programID && len(ix.Accounts) > 0 {
			return ix.Accounts
		}
	}
	return nil
}
