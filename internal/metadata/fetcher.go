// Package metadata resolves token name, symbol, decimals and supply from on-chain accounts.
package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/solana"
)

// AccountReader is the RPC subset the fetcher needs.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Fetcher looks up token metadata from the SPL mint and Metaplex metadata accounts.
type Fetcher interface {
	FetchMetadata(ctx context.Context, mint string) (*domain.TokenMetadata, error)
}

// Options configures RPCFetcher.
type Options struct {
	Logger *zerolog.Logger
	Now    func() time.Time
}

// RPCFetcher implements Fetcher over Solana RPC.
type RPCFetcher struct {
	rpc    AccountReader
	logger zerolog.Logger
	now    func() time.Time
}

// Compile-time interface check.
var _ Fetcher = (*RPCFetcher)(nil)

// NewRPCFetcher creates a new RPC-based metadata fetcher.
func NewRPCFetcher(rpc AccountReader, opts Options) *RPCFetcher {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "metadata").Logger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RPCFetcher{rpc: rpc, logger: logger, now: now}
}

// ErrMintNotFound is returned when the mint account does not exist.
var ErrMintNotFound = fmt.Errorf("mint account not found")

// FetchMetadata returns metadata for a mint. Decimals and supply come from the mint account,
// which must exist. Name and symbol are nil when the Metaplex account is absent or malformed.
func (f *RPCFetcher) FetchMetadata(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	meta := &domain.TokenMetadata{
		Mint:      mint,
		FetchedAt: f.now().UnixMilli(),
	}

	mintAcc, err := f.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account info: %w", err)
	}
	if mintAcc == nil {
		return nil, ErrMintNotFound
	}

	if raw, err := base64.StdEncoding.DecodeString(mintAcc.Data); err != nil {
		f.logger.Debug().Err(err).Str("mint", mint).Msg("decode mint data")
	} else if info, err := parseMint(raw); err != nil {
		f.logger.Debug().Err(err).Str("mint", mint).Msg("parse mint data")
	} else {
		supply := info.supply
		meta.Supply = &supply
		meta.Decimals = info.decimals
	}

	pda, err := DeriveMetadataPDA(mint)
	if err != nil {
		return nil, fmt.Errorf("derive metadata address: %w", err)
	}

	metaAcc, err := f.rpc.GetAccountInfo(ctx, pda)
	if err != nil {
		f.logger.Debug().Err(err).Str("mint", mint).Msg("get metadata account")
		return meta, nil
	}
	if metaAcc == nil {
		return meta, nil
	}

	raw, err := base64.StdEncoding.DecodeString(metaAcc.Data)
	if err != nil {
		f.logger.Debug().Err(err).Str("mint", mint).Msg("decode metadata")
		return meta, nil
	}
	info, err := parseMetaplex(raw)
	if err != nil {
		f.logger.Debug().Err(err).Str("mint", mint).Msg("parse metadata")
		return meta, nil
	}
	if info.name != "" {
		meta.Name = &info.name
	}
	if info.symbol != "" {
		meta.Symbol = &info.symbol
	}

	return meta, nil
}
