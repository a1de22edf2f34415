package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/observability"
)

// Raydium pool list endpoints.
const (
	DefaultRaydiumAMMURL  = "https://api.raydium.io/v2/main/pairs"
	DefaultRaydiumCLMMURL = "https://api.raydium.io/v2/ammV3/ammPools"
	DefaultSeedBatchSize  = 100
)

// SeederOptions configures Seeder.
type SeederOptions struct {
	AMMURL     string
	CLMMURL    string
	BatchSize  int
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Seeder bootstraps discovery records from the Raydium pool list APIs.
type Seeder struct {
	pipeline  *Pipeline
	ammURL    string
	clmmURL   string
	batchSize int
	client    *http.Client
	logger    zerolog.Logger
}

// SeedStats summarizes one Seed run.
type SeedStats struct {
	Listed   int // entries in the API responses
	Eligible int // WSOL-paired with positive liquidity
	Created  int
	Failed   int
}

// NewSeeder creates a seeder that writes through pipeline.
func NewSeeder(pipeline *Pipeline, opts SeederOptions) *Seeder {
	s := &Seeder{
		pipeline:  pipeline,
		ammURL:    opts.AMMURL,
		clmmURL:   opts.CLMMURL,
		batchSize: opts.BatchSize,
		client:    opts.HTTPClient,
		logger:    zerolog.Nop(),
	}
	if s.ammURL == "" {
		s.ammURL = DefaultRaydiumAMMURL
	}
	if s.clmmURL == "" {
		s.clmmURL = DefaultRaydiumCLMMURL
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultSeedBatchSize
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "seeder").Logger()
	}
	return s
}

// poolEntry covers both the AMM pairs list and the CLMM pool list.
type poolEntry struct {
	AmmID     string          `json:"ammId"`
	ID        string          `json:"id"`
	BaseMint  string          `json:"baseMint"`
	QuoteMint string          `json:"quoteMint"`
	MintA     string          `json:"mintA"`
	MintB     string          `json:"mintB"`
	Liquidity decimal.Decimal `json:"liquidity"`
	TVL       decimal.Decimal `json:"tvl"`
}

func (e poolEntry) poolID() string {
	if e.AmmID != "" {
		return e.AmmID
	}
	return e.ID
}

func (e poolEntry) mints() (string, string) {
	if e.BaseMint != "" || e.QuoteMint != "" {
		return e.BaseMint, e.QuoteMint
	}
	return e.MintA, e.MintB
}

// tokenMint returns the non-WSOL side of a WSOL pair with positive liquidity.
func (e poolEntry) tokenMint() (string, bool) {
	if !e.Liquidity.IsPositive() && !e.TVL.IsPositive() {
		return "", false
	}
	base, quote := e.mints()
	switch domain.WSOLMint {
	case base:
		return quote, quote != ""
	case quote:
		return base, base != ""
	}
	return "", false
}

// Seed loads the AMM then the CLMM pool lists. A failed list is logged and skipped.
func (s *Seeder) Seed(ctx context.Context) (SeedStats, error) {
	var total SeedStats
	for _, src := range []struct {
		url   string
		isAmm bool
	}{{s.ammURL, true}, {s.clmmURL, false}} {
		stats, err := s.seedList(ctx, src.url, src.isAmm)
		total.Listed += stats.Listed
		total.Eligible += stats.Eligible
		total.Created += stats.Created
		total.Failed += stats.Failed
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			s.logger.Error().Err(err).Str("url", src.url).Bool("amm", src.isAmm).Msg("pool list seeding failed")
		}
	}
	s.logger.Info().
		Int("listed", total.Listed).
		Int("eligible", total.Eligible).
		Int("created", total.Created).
		Int("failed", total.Failed).
		Msg("seeding finished")
	return total, nil
}

func (s *Seeder) seedList(ctx context.Context, url string, isAmm bool) (SeedStats, error) {
	var stats SeedStats
	entries, err := s.fetch(ctx, url)
	if err != nil {
		return stats, err
	}
	stats.Listed = len(entries)

	kind := "clmm"
	if isAmm {
		kind = "amm"
	}

	for start := 0; start < len(entries); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+s.batchSize, len(entries))

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, e := range entries[start:end] {
			mint, ok := e.tokenMint()
			if !ok || e.poolID() == "" {
				continue
			}
			stats.Eligible++

			wg.Add(1)
			go func(poolID, mint string) {
				defer wg.Done()
				created, err := s.pipeline.SeedPool(ctx, poolID, mint, isAmm)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					stats.Failed++
					s.logger.Warn().Err(err).Str("pool", poolID).Msg("seed pool failed")
					return
				}
				if created {
					stats.Created++
					observability.RecordPoolSeeded(kind)
				}
			}(e.poolID(), mint)
		}
		wg.Wait()
	}
	return stats, nil
}

func (s *Seeder) fetch(ctx context.Context, url string) ([]poolEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pool list: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pool list: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pool list status %d", resp.StatusCode)
	}
	return decodePoolList(body)
}

// decodePoolList accepts a bare array or an object wrapping it in "data".
func decodePoolList(body []byte) ([]poolEntry, error) {
	body = bytes.TrimSpace(body)
	var entries []poolEntry
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &entries); err != nil {
			return nil, fmt.Errorf("decode pool list: %w", err)
		}
		return entries, nil
	}
	var wrapped struct {
		Data []poolEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode pool list: %w", err)
	}
	return wrapped.Data, nil
}

// SeedPool records a pool known from a pool list. It reports whether a record was created.
func (p *Pipeline) SeedPool(ctx context.Context, poolID, mint string, isAmm bool) (bool, error) {
	if !p.seen.CheckAndInsert(poolID) {
		return false, nil
	}
	outcome, err := p.recordPool(ctx, poolID, mint, isAmm)
	if err != nil {
		p.seen.Remove(poolID)
		return false, err
	}
	return outcome == observability.OutcomeCreated, nil
}
