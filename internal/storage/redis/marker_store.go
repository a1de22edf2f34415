package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"solana-pool-agent/internal/storage"
)

// MarkerStore implements storage.MarkerStore on plain Redis string keys.
// Keys are written without expiry.
type MarkerStore struct {
	client *Client
}

// NewMarkerStore creates a new MarkerStore.
func NewMarkerStore(client *Client) *MarkerStore {
	return &MarkerStore{client: client}
}

// Compile-time interface check.
var _ storage.MarkerStore = (*MarkerStore)(nil)

// Get returns the marker value. Returns ErrNotFound if the key is unset.
func (s *MarkerStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get marker %s: %w", key, err)
	}
	return v, nil
}

// SetIfAbsent sets key to value with SETNX.
func (s *MarkerStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	if key == "" {
		return false, storage.ErrInvalidInput
	}

	ok, err := s.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx marker %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes the marker.
func (s *MarkerStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del marker %s: %w", key, err)
	}
	return nil
}
