package memory

import (
	"context"
	"errors"
	"testing"

	"solana-pool-agent/internal/domain"
	"solana-pool-agent/internal/storage"
)

func TestMarketStore_CreateIfAbsent(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	m := &domain.MarketRecord{
		Mint:       "mint123",
		MarketID:   "market123",
		Bids:       "bids123",
		Asks:       "asks123",
		EventQueue: "eq123",
		CreationTS: 1704067200000,
	}

	created, err := store.CreateIfAbsent(ctx, m)
	if err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}
	if created == nil || created.MarketID != "market123" {
		t.Fatalf("unexpected created record: %+v", created)
	}

	again, err := store.CreateIfAbsent(ctx, &domain.MarketRecord{Mint: "mint123", MarketID: "other"})
	if err != nil {
		t.Fatalf("second CreateIfAbsent failed: %v", err)
	}
	if again != nil {
		t.Errorf("expected nil for existing mint, got %+v", again)
	}

	got, err := store.GetByMint(ctx, "mint123")
	if err != nil {
		t.Fatalf("GetByMint failed: %v", err)
	}
	if got.MarketID != "market123" {
		t.Errorf("MarketID mismatch: got %s", got.MarketID)
	}
}

func TestMarketStore_NotFound(t *testing.T) {
	store := NewMarketStore()

	_, err := store.GetByMint(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
