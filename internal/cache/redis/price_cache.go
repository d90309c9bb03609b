package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TroveFi/yieldrouter/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// normalized price is stored at key "price:{asset}" with fields "price"
// (18-decimal fixed point, decimal string) and "ts" (Unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.raw}
}

func priceKey(asset string) string {
	return "price:" + asset
}

// SetPrice stores the latest normalized price and timestamp for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, asset string, price *big.Int, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(asset), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", asset, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for an asset. It returns
// domain.ErrNotFound when no price is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, asset string) (*big.Int, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("redis: parse price %s: %q", asset, priceStr)
	}

	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", asset, err)
	}
	return price, time.Unix(0, tsNano), nil
}
