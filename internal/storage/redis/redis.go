package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/go-redis/redis/v8"
)

// Client wraps the go-redis client for dependency injection.
type Client struct {
	*goredis.Client
}

// NewClient connects to Redis and verifies the connection with a ping.
// uri is either a redis:// (or rediss://) URL or a bare host:port address.
func NewClient(ctx context.Context, uri string) (*Client, error) {
	opts, err := parseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{Client: rdb}, nil
}

func parseURI(uri string) (*goredis.Options, error) {
	if uri == "" {
		return nil, fmt.Errorf("empty uri")
	}
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		return goredis.ParseURL(uri)
	}
	return &goredis.Options{Addr: uri}, nil
}
