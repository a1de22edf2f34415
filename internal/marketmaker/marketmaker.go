// Package marketmaker keeps the value of each configured token pair split 50/50 by swapping
// the over-weight side through the routing service.
package marketmaker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/jupiter"
	"solana-pool-agent/internal/observability"
	"solana-pool-agent/internal/solana"
	"solana-pool-agent/internal/storage"
)

// Default configuration values.
const (
	DefaultWaitTime       = 60 * time.Second
	DefaultSlippageBps    = 50
	DefaultMaxSlippageBps = 100
	slippageJitterBps     = 50
)

var (
	// DefaultMinTradeAmount is the dust threshold in whole units of the sold token.
	DefaultMinTradeAmount = decimal.RequireFromString("0.01")
	// DefaultPriceTolerance is carried for reporting only.
	DefaultPriceTolerance = decimal.RequireFromString("0.02")
)

// QuoteClient is the routing service surface the strategy uses.
type QuoteClient interface {
	GetQuote(ctx context.Context, inputMint, outputMint, amount string, slippageBps int) (*domain.Quote, error)
	GetSwapTransaction(ctx context.Context, quote *domain.Quote, opts jupiter.SwapOptions) (*domain.SwapTransaction, error)
}

// Executor submits a swap transaction and reports whether it finalized.
type Executor interface {
	ExecuteSwap(ctx context.Context, tx *domain.SwapTransaction) bool
}

// BalanceReader reads wallet balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]solana.TokenAccountBalance, error)
}

// Config holds strategy parameters.
type Config struct {
	Owner                 string // wallet public key
	Pairs                 []domain.TradePair
	Reference             domain.Token
	WaitTime              time.Duration
	SlippageBps           int
	PriceTolerance        decimal.Decimal
	MinTradeAmount        decimal.Decimal
	TradingEnabled        bool
	DynamicSlippage       bool
	DynamicSlippageMaxBps int
	WrapAndUnwrapSol      bool
	FeeAccount            string
}

// DefaultConfig returns the SOL/BARK pair priced in USDC with trading disabled.
func DefaultConfig() Config {
	return Config{
		Pairs:                 []domain.TradePair{{Token0: domain.SOL, Token1: domain.BARK}},
		Reference:             domain.USDC,
		WaitTime:              DefaultWaitTime,
		SlippageBps:           DefaultSlippageBps,
		PriceTolerance:        DefaultPriceTolerance,
		MinTradeAmount:        DefaultMinTradeAmount,
		DynamicSlippageMaxBps: DefaultMaxSlippageBps,
		WrapAndUnwrapSol:      true,
	}
}

// Validate checks Config.
func (c Config) Validate() error {
	if c.Owner == "" {
		return errors.New("owner is required")
	}
	if len(c.Pairs) == 0 {
		return errors.New("at least one trade pair is required")
	}
	if c.Reference.Mint == "" {
		return errors.New("reference token is required")
	}
	if c.WaitTime <= 0 {
		return fmt.Errorf("wait time must be positive, got %v", c.WaitTime)
	}
	if err := jupiter.ValidateSlippage(c.SlippageBps); err != nil {
		return err
	}
	if c.DynamicSlippage && c.DynamicSlippageMaxBps < c.SlippageBps {
		return fmt.Errorf("dynamic slippage max %d below base %d", c.DynamicSlippageMaxBps, c.SlippageBps)
	}
	if c.MinTradeAmount.IsNegative() {
		return errors.New("minimum trade amount must not be negative")
	}
	return nil
}

// Options configures MarketMaker collaborators.
type Options struct {
	Journal storage.JournalStore
	Rand    func(n int) int
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *zerolog.Logger
}

// MarketMaker runs the rebalancing loop.
type MarketMaker struct {
	cfg      Config
	quotes   QuoteClient
	executor Executor
	balances BalanceReader
	journal  storage.JournalStore
	rand     func(n int) int
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// New creates a market maker. executor may be nil when trading is disabled.
func New(cfg Config, quotes QuoteClient, executor Executor, balances BalanceReader, opts Options) (*MarketMaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market maker config: %w", err)
	}
	if cfg.TradingEnabled && executor == nil {
		return nil, errors.New("trading enabled without an executor")
	}

	m := &MarketMaker{
		cfg:      cfg,
		quotes:   quotes,
		executor: executor,
		balances: balances,
		journal:  opts.Journal,
		rand:     opts.Rand,
		now:      opts.Now,
		sleep:    opts.Sleep,
		logger:   zerolog.Nop(),
	}
	if m.rand == nil {
		m.rand = rand.IntN
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	if opts.Logger != nil {
		m.logger = opts.Logger.With().Str("component", "marketmaker").Logger()
	}
	return m, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run evaluates every pair, waits WaitTime, and repeats until ctx is cancelled.
// Iterations never overlap.
func (m *MarketMaker) Run(ctx context.Context) error {
	m.logger.Info().
		Bool("trading_enabled", m.cfg.TradingEnabled).
		Dur("wait", m.cfg.WaitTime).
		Int("pairs", len(m.cfg.Pairs)).
		Str("price_tolerance", m.cfg.PriceTolerance.String()).
		Msg("market maker started")

	for {
		m.Tick(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m.logger.Debug().Dur("wait", m.cfg.WaitTime).Msg("waiting for next tick")
		if err := m.sleep(ctx, m.cfg.WaitTime); err != nil {
			return err
		}
	}
}

// Tick evaluates each pair once, in order. Per-pair errors are logged and journaled.
func (m *MarketMaker) Tick(ctx context.Context) {
	for _, pair := range m.cfg.Pairs {
		tick := m.EvaluatePair(ctx, pair)
		observability.RecordTick(tick.Pair, tick.Outcome)
		m.record(ctx, tick)
	}
}

// EvaluatePair runs Evaluate and, when needed, Trade for one pair.
func (m *MarketMaker) EvaluatePair(ctx context.Context, pair domain.TradePair) *domain.RebalanceTick {
	tick := &domain.RebalanceTick{
		TickID:    uuid.NewString(),
		Pair:      pair.Name(),
		Timestamp: m.now().UnixMilli(),
	}
	log := m.logger.With().Str("pair", tick.Pair).Str("tick", tick.TickID).Logger()

	fail := func(stage string, err error) *domain.RebalanceTick {
		tick.Outcome = domain.TickError
		tick.Error = fmt.Sprintf("%s: %v", stage, err)
		log.Error().Err(err).Str("stage", stage).Msg("tick failed")
		return tick
	}

	v, err := m.valuate(ctx, pair)
	if err != nil {
		return fail("valuate", err)
	}
	value0, value1 := v.Values()
	tick.Balance0, tick.Balance1 = v.Balance0.String(), v.Balance1.String()
	tick.Price0, tick.Price1 = v.Price0.String(), v.Price1.String()
	tick.Value0, tick.Value1 = value0.String(), value1.String()

	log.Info().
		Str("balance0", tick.Balance0).
		Str("balance1", tick.Balance1).
		Str("value0", tick.Value0).
		Str("value1", tick.Value1).
		Msg("pair valued")

	decision := Decide(pair, v, m.cfg.MinTradeAmount)
	tick.TradeNeeded = decision.TradeNeeded
	if !decision.TradeNeeded {
		tick.Outcome = domain.TickNoTrade
		log.Info().Str("amount", decision.Amount.String()).Msg("no trade needed")
		return tick
	}

	tick.SellMint = decision.Sell.Mint
	tick.BuyMint = decision.Buy.Mint
	tick.Amount = decision.Amount.String()
	tick.InAmount = domain.ToSmallestUnit(decision.Amount, decision.Sell.Decimals)
	if tick.InAmount == "0" {
		tick.TradeNeeded = false
		tick.Outcome = domain.TickNoTrade
		log.Info().Str("amount", tick.Amount).Msg("trade amount below smallest unit")
		return tick
	}
	tick.SlippageBps = m.tradeSlippage()

	log.Info().
		Str("sell", decision.Sell.Symbol).
		Str("buy", decision.Buy.Symbol).
		Str("amount", tick.Amount).
		Int("slippage_bps", tick.SlippageBps).
		Msg("rebalance trade")

	quote, err := m.quotes.GetQuote(ctx, decision.Sell.Mint, decision.Buy.Mint, tick.InAmount, tick.SlippageBps)
	if err != nil {
		return fail("quote", err)
	}
	tick.OutAmount = quote.OutAmount

	tx, err := m.quotes.GetSwapTransaction(ctx, quote, jupiter.SwapOptions{
		UserPublicKey:    m.cfg.Owner,
		WrapAndUnwrapSol: m.cfg.WrapAndUnwrapSol,
		FeeAccount:       m.cfg.FeeAccount,
	})
	if err != nil {
		return fail("swap transaction", err)
	}

	if !m.cfg.TradingEnabled {
		tick.Outcome = domain.TickDryRun
		log.Info().Str("out_amount", quote.OutAmount).Msg("trading disabled, swap not executed")
		return tick
	}

	if m.executor.ExecuteSwap(ctx, tx) {
		tick.Executed = true
		tick.Outcome = domain.TickExecuted
		log.Info().Msg("trade executed")
	} else {
		tick.Outcome = domain.TickFailed
		log.Warn().Msg("trade not confirmed, retrying next tick")
	}
	return tick
}

// tradeSlippage returns the base slippage, plus jitter in [0, 50) bps capped at the
// configured maximum when dynamic slippage is on.
func (m *MarketMaker) tradeSlippage() int {
	if !m.cfg.DynamicSlippage {
		return m.cfg.SlippageBps
	}
	return min(m.cfg.SlippageBps+m.rand(slippageJitterBps), m.cfg.DynamicSlippageMaxBps)
}

func (m *MarketMaker) valuate(ctx context.Context, pair domain.TradePair) (Valuation, error) {
	var v Valuation
	var err error
	if v.Balance0, err = m.balance(ctx, pair.Token0); err != nil {
		return v, fmt.Errorf("balance %s: %w", pair.Token0.Symbol, err)
	}
	if v.Balance1, err = m.balance(ctx, pair.Token1); err != nil {
		return v, fmt.Errorf("balance %s: %w", pair.Token1.Symbol, err)
	}
	if v.Price0, err = m.price(ctx, pair.Token0); err != nil {
		return v, fmt.Errorf("price %s: %w", pair.Token0.Symbol, err)
	}
	if v.Price1, err = m.price(ctx, pair.Token1); err != nil {
		return v, fmt.Errorf("price %s: %w", pair.Token1.Symbol, err)
	}
	return v, nil
}

// balance returns the wallet's holding of token in whole units. SPL balances sum every
// token account of the mint.
func (m *MarketMaker) balance(ctx context.Context, token domain.Token) (decimal.Decimal, error) {
	if token.IsNative() {
		lamports, err := m.balances.GetBalance(ctx, m.cfg.Owner)
		if err != nil {
			return decimal.Zero, err
		}
		return domain.AssetBalance{Mint: token.Mint, Raw: lamports, Decimals: token.Decimals}.Amount(), nil
	}

	accounts, err := m.balances.GetTokenAccountsByOwner(ctx, m.cfg.Owner, token.Mint)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, acc := range accounts {
		total = total.Add(decimal.NewFromUint64(acc.Amount))
	}
	return domain.FromSmallestUnit(total, token.Decimals), nil
}

// price quotes one whole unit of token against the reference asset.
func (m *MarketMaker) price(ctx context.Context, token domain.Token) (decimal.Decimal, error) {
	ref := m.cfg.Reference
	if token.Mint == ref.Mint {
		return decimal.NewFromInt(1), nil
	}

	unit := domain.ToSmallestUnit(decimal.NewFromInt(1), token.Decimals)
	quote, err := m.quotes.GetQuote(ctx, token.Mint, ref.Mint, unit, m.cfg.SlippageBps)
	if err != nil {
		return decimal.Zero, err
	}
	out, err := decimal.NewFromString(quote.OutAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse outAmount %q: %w", quote.OutAmount, err)
	}
	return domain.FromSmallestUnit(out, ref.Decimals), nil
}

func (m *MarketMaker) record(ctx context.Context, tick *domain.RebalanceTick) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(ctx, tick); err != nil {
		m.logger.Warn().Err(err).Str("tick", tick.TickID).Msg("failed to journal tick")
	}
}
