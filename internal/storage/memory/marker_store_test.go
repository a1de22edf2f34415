package memory

import (
	"context"
	"errors"
	"testing"

	"solana-pool-agent/internal/storage"
)

func TestMarkerStore_SetIfAbsent(t *testing.T) {
	store := NewMarkerStore()
	ctx := context.Background()
	key := storage.PoolMarkerKey("pool123")

	if _, err := store.Get(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before set, got %v", err)
	}

	set, err := store.SetIfAbsent(ctx, key, storage.MarkerAdded)
	if err != nil {
		t.Fatalf("SetIfAbsent failed: %v", err)
	}
	if !set {
		t.Fatal("expected first SetIfAbsent to set the key")
	}

	set, err = store.SetIfAbsent(ctx, key, "other")
	if err != nil {
		t.Fatalf("SetIfAbsent failed: %v", err)
	}
	if set {
		t.Error("expected second SetIfAbsent to be a no-op")
	}

	v, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != storage.MarkerAdded {
		t.Errorf("value mismatch: got %s, want %s", v, storage.MarkerAdded)
	}
}

func TestMarkerStore_Delete(t *testing.T) {
	store := NewMarkerStore()
	ctx := context.Background()

	_, _ = store.SetIfAbsent(ctx, "k", storage.MarkerAdded)
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete of unset key failed: %v", err)
	}
}

func TestMarkerKeys(t *testing.T) {
	if got := storage.PoolMarkerKey("abc"); got != "raydium_mint_abc" {
		t.Errorf("PoolMarkerKey = %s", got)
	}
	if got := storage.MarketMarkerKey("abc"); got != "openmarket_abc" {
		t.Errorf("MarketMarkerKey = %s", got)
	}
}
