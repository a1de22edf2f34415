// Package config loads agent settings from a .env file, an optional YAML file and the
// process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/solana"
)

// RPCConfig holds ledger endpoints.
type RPCConfig struct {
	HTTPEndpoint string `yaml:"http_endpoint"`
	WSEndpoint   string `yaml:"ws_endpoint"`
	Commitment   string `yaml:"commitment"`
}

// JupiterConfig holds routing service settings.
type JupiterConfig struct {
	BaseURI       string        `yaml:"base_uri"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// TradingConfig holds market maker settings. Decimal values are kept as strings and
// parsed by Validate.
type TradingConfig struct {
	Enabled               bool               `yaml:"enabled"`
	WaitTime              time.Duration      `yaml:"wait_time"`
	SlippageBps           int                `yaml:"slippage_bps"`
	PriceTolerance        string             `yaml:"price_tolerance"`
	MinTradeAmount        string             `yaml:"min_trade_amount"`
	DynamicSlippage       bool               `yaml:"dynamic_slippage"`
	DynamicSlippageMaxBps int                `yaml:"dynamic_slippage_max_bps"`
	WrapAndUnwrapSol      bool               `yaml:"wrap_and_unwrap_sol"`
	FeeAccount            string             `yaml:"fee_account"`
	Reference             domain.Token       `yaml:"reference"`
	Pairs                 []domain.TradePair `yaml:"pairs"`
}

// StorageConfig holds backing store locations. Empty values select in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	RedisURI      string `yaml:"redis_uri"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// DiscoveryConfig holds pool discovery settings.
type DiscoveryConfig struct {
	RaydiumAMMURL  string `yaml:"raydium_amm_url"`
	RaydiumCLMMURL string `yaml:"raydium_clmm_url"`
	WatchMarkets   bool   `yaml:"watch_markets"`
	QueueSize      int    `yaml:"queue_size"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full agent configuration.
type Config struct {
	RPC         RPCConfig       `yaml:"rpc"`
	Jupiter     JupiterConfig   `yaml:"jupiter"`
	Trading     TradingConfig   `yaml:"trading"`
	Storage     StorageConfig   `yaml:"storage"`
	Discovery   DiscoveryConfig `yaml:"discovery"`
	Log         LogConfig       `yaml:"log"`
	KeypairPath string          `yaml:"keypair_path"`
	MetricsAddr string          `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		RPC: RPCConfig{
			HTTPEndpoint: "https://api.mainnet-beta.solana.com",
			WSEndpoint:   "wss://api.mainnet-beta.solana.com",
			Commitment:   string(solana.CommitmentFinalized),
		},
		Jupiter: JupiterConfig{
			BaseURI:       "https://quote-api.jup.ag/v6",
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		Trading: TradingConfig{
			WaitTime:              60 * time.Second,
			SlippageBps:           50,
			PriceTolerance:        "0.02",
			MinTradeAmount:        "0.01",
			DynamicSlippageMaxBps: 100,
			WrapAndUnwrapSol:      true,
			Reference:             domain.USDC,
			Pairs:                 []domain.TradePair{{Token0: domain.SOL, Token1: domain.BARK}},
		},
		Discovery: DiscoveryConfig{
			RaydiumAMMURL:  "https://api.raydium.io/v2/main/pairs",
			RaydiumCLMMURL: "https://api.raydium.io/v2/ammV3/ammPools",
			QueueSize:      1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		MetricsAddr: ":9090",
	}
}

// Load builds a Config from defaults, a .env file in the working directory, the YAML file
// at path (skipped when empty) and environment variables, then validates it.
func Load(path string) (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotenv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// applyEnv overrides fields from environment variables read through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}
	// An explicit 0 is applied so Validate can reject it.
	millis := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}

	str("MAINNET_RPC", &c.RPC.HTTPEndpoint)
	str("RPC_WEBSOCKET_ENDPOINT", &c.RPC.WSEndpoint)
	str("COMMITMENT_LEVEL", &c.RPC.Commitment)
	str("JUPITER_API_BASE_URI", &c.Jupiter.BaseURI)
	str("TRADING_PRICE_TOLERANCE", &c.Trading.PriceTolerance)
	str("TRADING_MIN_TRADE_AMOUNT", &c.Trading.MinTradeAmount)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("REDIS_URI", &c.Storage.RedisURI)
	str("CLICKHOUSE_DSN", &c.Storage.ClickHouseDSN)
	str("WALLET_KEYPAIR_PATH", &c.KeypairPath)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("METRICS_ADDR", &c.MetricsAddr)
	str("RAYDIUM_AMM_URL", &c.Discovery.RaydiumAMMURL)
	str("RAYDIUM_CLMM_URL", &c.Discovery.RaydiumCLMMURL)

	return errors.Join(
		num("JUPITER_RETRY_ATTEMPTS", &c.Jupiter.RetryAttempts),
		millis("JUPITER_RETRY_DELAY_MS", &c.Jupiter.RetryDelay),
		millis("TRADING_WAIT_TIME", &c.Trading.WaitTime),
		num("TRADING_SLIPPAGE_BPS", &c.Trading.SlippageBps),
		num("DYNAMIC_SLIPPAGE_MAX_BPS", &c.Trading.DynamicSlippageMaxBps),
		boolean("TRADING_ENABLED", &c.Trading.Enabled),
		boolean("DYNAMIC_SLIPPAGE_ENABLED", &c.Trading.DynamicSlippage),
	)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPC.HTTPEndpoint) == "" {
		errs = append(errs, errors.New("rpc http endpoint is required"))
	}
	if strings.TrimSpace(c.RPC.WSEndpoint) == "" {
		errs = append(errs, errors.New("rpc websocket endpoint is required"))
	}
	if _, ok := solana.ParseCommitment(c.RPC.Commitment); !ok {
		errs = append(errs, fmt.Errorf("unknown commitment %q", c.RPC.Commitment))
	}
	if strings.TrimSpace(c.Jupiter.BaseURI) == "" {
		errs = append(errs, errors.New("jupiter base uri is required"))
	}
	if c.Jupiter.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("jupiter retry attempts must be at least 1, got %d", c.Jupiter.RetryAttempts))
	}
	if c.Jupiter.RetryDelay <= 0 {
		errs = append(errs, fmt.Errorf("jupiter retry delay must be positive, got %v", c.Jupiter.RetryDelay))
	}
	if c.Trading.WaitTime <= 0 {
		errs = append(errs, fmt.Errorf("trading wait time must be positive, got %v", c.Trading.WaitTime))
	}
	if c.Trading.SlippageBps < 0 || c.Trading.SlippageBps > 10000 {
		errs = append(errs, fmt.Errorf("slippage bps out of range [0, 10000]: %d", c.Trading.SlippageBps))
	}
	if c.Trading.DynamicSlippageMaxBps < 0 || c.Trading.DynamicSlippageMaxBps > 10000 {
		errs = append(errs, fmt.Errorf("dynamic slippage max bps out of range [0, 10000]: %d", c.Trading.DynamicSlippageMaxBps))
	}
	if _, err := decimal.NewFromString(c.Trading.PriceTolerance); err != nil {
		errs = append(errs, fmt.Errorf("price tolerance %q: %w", c.Trading.PriceTolerance, err))
	}
	if m, err := decimal.NewFromString(c.Trading.MinTradeAmount); err != nil {
		errs = append(errs, fmt.Errorf("min trade amount %q: %w", c.Trading.MinTradeAmount, err))
	} else if m.IsNegative() {
		errs = append(errs, fmt.Errorf("min trade amount must not be negative: %s", m))
	}
	if len(c.Trading.Pairs) == 0 {
		errs = append(errs, errors.New("at least one trading pair is required"))
	}
	if c.Discovery.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue size must be at least 1, got %d", c.Discovery.QueueSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CommitmentLevel returns the parsed commitment. Call after Validate.
func (c *Config) CommitmentLevel() solana.Commitment {
	commitment, _ := solana.ParseCommitment(c.RPC.Commitment)
	return commitment
}

// PriceToleranceValue returns the parsed price tolerance. Call after Validate.
func (c *Config) PriceToleranceValue() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.PriceTolerance)
}

// MinTradeAmountValue returns the parsed minimum trade amount. Call after Validate.
func (c *Config) MinTradeAmountValue() decimal.Decimal {
	return decimal.RequireFromString(c.Trading.MinTradeAmount)
}
