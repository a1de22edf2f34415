package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"solana-pool-agent/internal/config"
	"solana-pool-agent/internal/discovery"
	"solana-pool-agent/internal/execution"
	"solana-pool-agent/internal/jupiter"
	"solana-pool-agent/internal/listener"
	"solana-pool-agent/internal/logging"
	"solana-pool-agent/internal/marketmaker"
	"solana-pool-agent/internal/metadata"
	"solana-pool-agent/internal/observability"
	"solana-pool-agent/internal/solana"
	"solana-pool-agent/internal/storage"
	chstore "solana-pool-agent/internal/storage/clickhouse"
	"solana-pool-agent/internal/storage/memory"
	"solana-pool-agent/internal/storage/migrations"
	pgstore "solana-pool-agent/internal/storage/postgres"
	redisstore "solana-pool-agent/internal/storage/redis"
	"solana-pool-agent/internal/wallet"
)

func main() {
	configPath := flag.String("config", "", "Optional YAML config file")
	mode := flag.String("mode", "all", "Run mode: all, listen, mm, or seed")
	owner := flag.String("owner", "", "Wallet public key for dry-run market making without a keypair")
	tradingEnabled := flag.Bool("trading-enabled", false, "Submit swaps instead of dry-running them (overrides TRADING_ENABLED)")
	watchMarkets := flag.Bool("watch-markets", false, "Also record OpenBook markets")
	seedOnStart := flag.Bool("seed", false, "Seed pools from the Raydium pool lists before listening")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides METRICS_ADDR, \"-\" disables)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "trading-enabled":
			cfg.Trading.Enabled = *tradingEnabled
		case "watch-markets":
			cfg.Discovery.WatchMarkets = *watchMarkets
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		}
	})
	if cfg.MetricsAddr == "-" {
		cfg.MetricsAddr = ""
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "pool-agent"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &agent{cfg: cfg, logger: logger, owner: *owner}

	switch *mode {
	case "all":
		err = a.runAll(ctx, *seedOnStart)
	case "listen":
		err = a.runListen(ctx, *seedOnStart)
	case "mm":
		err = a.runMarketMaker(ctx)
	case "seed":
		err = a.runSeed(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	a.close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Str("mode", *mode).Msg("agent stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info().Str("addr", addr).Msg("starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

// agent wires the configured components and owns their connections.
type agent struct {
	cfg    *config.Config
	logger zerolog.Logger
	owner  string

	rpc     *solana.HTTPClient
	closers []func()
}

func (a *agent) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *agent) rpcClient() *solana.HTTPClient {
	if a.rpc == nil {
		a.rpc = solana.NewHTTPClient(a.cfg.RPC.HTTPEndpoint, solana.WithCommitment(a.cfg.CommitmentLevel()))
	}
	return a.rpc
}

// runner is a built component waiting to be started.
type runner func(ctx context.Context) error

// runAll builds both activities before starting either. Each then runs under its own
// supervisor, so a listener outage leaves the market maker trading and vice versa.
func (a *agent) runAll(ctx context.Context, seed bool) error {
	listen, err := a.listener(ctx, seed)
	if err != nil {
		return err
	}
	mm, err := a.marketMaker(ctx)
	if err != nil {
		return err
	}

	return newSupervisor(a.logger).superviseAll(ctx, map[string]runner{
		"listener":     listen,
		"market_maker": mm,
	})
}

func (a *agent) runListen(ctx context.Context, seed bool) error {
	listen, err := a.listener(ctx, seed)
	if err != nil {
		return err
	}
	return newSupervisor(a.logger).run(ctx, "listener", listen)
}

func (a *agent) runMarketMaker(ctx context.Context) error {
	mm, err := a.marketMaker(ctx)
	if err != nil {
		return err
	}
	return newSupervisor(a.logger).run(ctx, "market_maker", mm)
}

// listener builds the discovery pipeline and log subscriber. When seed is set the pool
// lists are loaded once, before the first subscription; restarts skip it.
func (a *agent) listener(ctx context.Context, seed bool) (runner, error) {
	pipeline, err := a.pipeline(ctx)
	if err != nil {
		return nil, err
	}

	seeded := !seed
	return func(ctx context.Context) error {
		if !seeded {
			if _, err := a.seeder(pipeline).Seed(ctx); err != nil {
				return err
			}
			seeded = true
		}

		ws, err := solana.NewWSClient(ctx, a.cfg.RPC.WSEndpoint, nil)
		if err != nil {
			return fmt.Errorf("create websocket client: %w", err)
		}

		sub := listener.NewSubscriber(ws, pipeline, listener.Options{
			Layouts:       pipeline.Layouts(),
			Commitment:    a.cfg.CommitmentLevel(),
			QueueSize:     a.cfg.Discovery.QueueSize,
			WatchMarkets:  a.cfg.Discovery.WatchMarkets,
			MarketProgram: discovery.OpenBookProgram,
			Logger:        &a.logger,
		})
		return sub.Run(ctx)
	}, nil
}

func (a *agent) runSeed(ctx context.Context) error {
	pipeline, err := a.pipeline(ctx)
	if err != nil {
		return err
	}
	stats, err := a.seeder(pipeline).Seed(ctx)
	if err != nil {
		return err
	}
	a.logger.Info().
		Int("listed", stats.Listed).
		Int("eligible", stats.Eligible).
		Int("created", stats.Created).
		Int("failed", stats.Failed).
		Msg("seed complete")
	return nil
}

func (a *agent) seeder(p *discovery.Pipeline) *discovery.Seeder {
	return discovery.NewSeeder(p, discovery.SeederOptions{
		AMMURL:  a.cfg.Discovery.RaydiumAMMURL,
		CLMMURL: a.cfg.Discovery.RaydiumCLMMURL,
		Logger:  &a.logger,
	})
}

// pipeline builds the discovery pipeline, falling back to in-memory stores for any
// backend whose location is not configured.
func (a *agent) pipeline(ctx context.Context) (*discovery.Pipeline, error) {
	var pools storage.DiscoveryStore = memory.NewDiscoveryStore()
	var markets storage.MarketStore = memory.NewMarketStore()
	var markers storage.MarkerStore = memory.NewMarkerStore()

	if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		pools = pgstore.NewDiscoveryStore(pool)
		markets = pgstore.NewMarketStore(pool)
	} else {
		a.logger.Warn().Msg("POSTGRES_DSN not set, discovery records kept in memory")
	}

	if uri := a.cfg.Storage.RedisURI; uri != "" {
		client, err := redisstore.NewClient(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		markers = redisstore.NewMarkerStore(client)
	} else {
		a.logger.Warn().Msg("REDIS_URI not set, dedup markers kept in memory")
	}

	rpc := a.rpcClient()
	return discovery.NewPipeline(
		rpc,
		markers,
		pools,
		markets,
		metadata.NewRPCFetcher(rpc, metadata.Options{Logger: &a.logger}),
		discovery.PipelineOptions{Logger: &a.logger},
	), nil
}

// marketMaker builds the rebalancing loop. A keypair is required only when trading is enabled.
func (a *agent) marketMaker(ctx context.Context) (runner, error) {
	rpc := a.rpcClient()

	var signer *wallet.Wallet
	if a.cfg.KeypairPath != "" {
		w, err := wallet.LoadKeypairFile(a.cfg.KeypairPath)
		if err != nil {
			return nil, err
		}
		signer = w
	}

	owner := a.owner
	if signer != nil {
		owner = signer.PublicKey()
	}
	if owner == "" {
		return nil, errors.New("market maker needs WALLET_KEYPAIR_PATH or -owner")
	}

	var executor marketmaker.Executor
	if a.cfg.Trading.Enabled {
		if signer == nil {
			return nil, errors.New("trading enabled without WALLET_KEYPAIR_PATH")
		}
		executor = execution.NewExecutor(rpc, signer, execution.Options{Logger: &a.logger})
	}

	var journal storage.JournalStore = memory.NewJournalStore()
	if dsn := a.cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("prepare clickhouse journal: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		journal = chstore.NewJournalStore(conn)
	}

	quotes := jupiter.NewClient(
		jupiter.WithBaseURI(a.cfg.Jupiter.BaseURI),
		jupiter.WithRetryAttempts(a.cfg.Jupiter.RetryAttempts),
		jupiter.WithRetryDelay(a.cfg.Jupiter.RetryDelay),
		jupiter.WithLogger(&a.logger),
	)

	mm, err := marketmaker.New(marketmaker.Config{
		Owner:                 owner,
		Pairs:                 a.cfg.Trading.Pairs,
		Reference:             a.cfg.Trading.Reference,
		WaitTime:              a.cfg.Trading.WaitTime,
		SlippageBps:           a.cfg.Trading.SlippageBps,
		PriceTolerance:        a.cfg.PriceToleranceValue(),
		MinTradeAmount:        a.cfg.MinTradeAmountValue(),
		TradingEnabled:        a.cfg.Trading.Enabled,
		DynamicSlippage:       a.cfg.Trading.DynamicSlippage,
		DynamicSlippageMaxBps: a.cfg.Trading.DynamicSlippageMaxBps,
		WrapAndUnwrapSol:      a.cfg.Trading.WrapAndUnwrapSol,
		FeeAccount:            a.cfg.Trading.FeeAccount,
	}, quotes, executor, rpc, marketmaker.Options{
		Journal: journal,
		Logger:  &a.logger,
	})
	if err != nil {
		return nil, err
	}
	return mm.Run, nil
}
