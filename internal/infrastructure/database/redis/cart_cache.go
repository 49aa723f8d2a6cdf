// internal/infrastructure/database/redis/cart_cache.go
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/your-org/photo-print-storefront/internal/domain/cart"
)

const defaultCartTTL = 24 * time.Hour

// CartCache stores the last server-confirmed cart so a degraded start can still show something
type CartCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartCache(client *redis.Client, ttl time.Duration) *CartCache {
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &CartCache{client: client, ttl: ttl}
}

func (c *CartCache) Get(ctx context.Context, owner string) (*cart.Cart, error) {
	data, err := c.client.Get(ctx, cartKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var out cart.Cart
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &out, nil
}

func (c *CartCache) Set(ctx context.Context, owner string, value *cart.Cart) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := c.client.Set(ctx, cartKey(owner), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, owner string) error {
	if err := c.client.Del(ctx, cartKey(owner)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(owner string) string {
	return fmt.Sprintf("storefront:cart:%s", owner)
}
