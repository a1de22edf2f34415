package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/solana"
	"solana-pool-agent/internal/solana/stub"
	"solana-pool-agent/internal/storage"
	"solana-pool-agent/internal/storage/memory"
)

// countingStore wraps a DiscoveryStore and counts CreateIfAbsent calls.
type countingStore struct {
	storage.DiscoveryStore
	creates atomic.Int32
	failErr error
}

func (s *countingStore) CreateIfAbsent(ctx context.Context, r *domain.PoolDiscoveryRecord) (*domain.PoolDiscoveryRecord, error) {
	s.creates.Add(1)
	if s.failErr != nil {
		return nil, s.failErr
	}
	return s.DiscoveryStore.CreateIfAbsent(ctx, r)
}

// fakeMetadata returns fixed names, or err when set.
type fakeMetadata struct {
	mu    sync.Mutex
	names map[string][2]string
	err   error
	calls int
}

func (f *fakeMetadata) FetchMetadata(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	meta := &domain.TokenMetadata{Mint: mint, Decimals: 9}
	if n, ok := f.names[mint]; ok {
		meta.Name, meta.Symbol = &n[0], &n[1]
	}
	return meta, nil
}

// ammAccounts builds an initialize2 account list with pool at 4 and mints at 8 and 9.
func ammAccounts(pool, mintA, mintB string) []string {
	accounts := make([]string, 21)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("acc%d", i)
	}
	accounts[4], accounts[8], accounts[9] = pool, mintA, mintB
	return accounts
}

// clmmAccounts builds an OpenPositionV2 account list with pool at 5, mintA at 21 and mintB at 20.
func clmmAccounts(pool, mintA, mintB string) []string {
	accounts := make([]string, 22)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("acc%d", i)
	}
	accounts[5], accounts[21], accounts[20] = pool, mintA, mintB
	return accounts
}

func poolTx(sig, program string, accounts []string) *solana.ParsedTransaction {
	return &solana.ParsedTransaction{
		Signature: sig,
		Slot:      100,
		Instructions: []solana.ParsedInstruction{
			{ProgramID: "ComputeBudget111111111111111111111111111111"},
			{ProgramID: program, Accounts: accounts},
		},
	}
}

type testEnv struct {
	rpc      *stub.RPCClient
	markers  *memory.MarkerStore
	pools    *countingStore
	markets  *memory.MarketStore
	meta     *fakeMetadata
	pipeline *Pipeline
}

func newTestEnv() *testEnv {
	env := &testEnv{
		rpc:     stub.NewRPCClient(),
		markers: memory.NewMarkerStore(),
		pools:   &countingStore{DiscoveryStore: memory.NewDiscoveryStore()},
		markets: memory.NewMarketStore(),
		meta:    &fakeMetadata{names: map[string][2]string{}},
	}
	env.pipeline = NewPipeline(env.rpc, env.markers, env.pools, env.markets, env.meta, PipelineOptions{
		FetchBackoff: time.Millisecond,
		Now:          func() time.Time { return time.UnixMilli(1700000000000) },
	})
	return env
}

var errBoom = errors.New("boom")
