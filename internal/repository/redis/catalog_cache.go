package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func catalogKey(domain string) string { return "catalog:" + domain + ":bundle" }

// Get returns the cached STIX bundle for a domain. A miss is (nil, false, nil).
func (c *Client) Get(ctx context.Context, domain string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, catalogKey(domain)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get catalog: %w", err)
	}
	return data, true, nil
}

// Set caches a STIX bundle. ttl <= 0 keeps it until evicted.
func (c *Client) Set(ctx context.Context, domain string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, catalogKey(domain), data, ttl).Err(); err != nil {
		return fmt.Errorf("set catalog: %w", err)
	}
	return nil
}

// Invalidate drops a cached bundle.
func (c *Client) Invalidate(ctx context.Context, domain string) error {
	return c.rdb.Del(ctx, catalogKey(domain)).Err()
}
