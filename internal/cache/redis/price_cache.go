package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each pair's
// latest price is stored at "venue_price:{pair}" with fields "price" (decimal
// string) and "ts" (Unix nanoseconds), expiring after the configured TTL so a
// stalled feed never serves stale quotes.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

func priceKey(pair string) string {
	return "venue_price:" + pair
}

// SetPrice stores the latest price and timestamp for a pair.
func (pc *PriceCache) SetPrice(ctx context.Context, pair string, price string, ts time.Time) error {
	key := priceKey(pair)
	fields := map[string]interface{}{
		"price": price,
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", pair, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a pair. It returns
// domain.ErrNotFound when no fresh quote exists.
func (pc *PriceCache) GetPrice(ctx context.Context, pair string) (string, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(pair)).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("redis: get price %s: %w", pair, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, domain.ErrNotFound
	}

	price, ok := vals["price"]
	if !ok || price == "" {
		return "", time.Time{}, domain.ErrNotFound
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return "", time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("redis: parse ts for %s: %w", pair, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
