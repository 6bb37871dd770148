package timedata

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"evcsedge/backend/services/evcs-edge/internal/evcs"
)

const defaultCacheTTL = 24 * time.Hour

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache keeps the latest value per channel in Redis in front of a Store.
// Cache failures fall through to the store.
type Cache struct {
	client redisClient
	next   Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache wraps next with a Redis latest-value cache.
func NewCache(client redisClient, next Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, next: next, ttl: ttl, logger: logger}
}

func cacheKey(addr evcs.ChannelAddress) string {
	return "timedata:latest:" + addr.Component + ":" + string(addr.Channel)
}

// LatestValue serves from Redis when possible.
func (c *Cache) LatestValue(ctx context.Context, addr evcs.ChannelAddress) (any, bool, error) {
	key := cacheKey(addr)
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
			return v, true, nil
		}
		c.logger.Debug("ignoring malformed cache entry", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, ok, err := c.next.LatestValue(ctx, addr)
	if err != nil || !ok {
		return value, ok, err
	}
	if f, ferr := toFloat(value); ferr == nil {
		c.set(ctx, key, f)
	}
	return value, ok, nil
}

// Record writes through to the store and refreshes the cached value.
func (c *Cache) Record(ctx context.Context, addr evcs.ChannelAddress, value float64, at time.Time) error {
	if err := c.next.Record(ctx, addr, value, at); err != nil {
		return err
	}
	c.set(ctx, cacheKey(addr), value)
	return nil
}

func (c *Cache) set(ctx context.Context, key string, value float64) {
	if err := c.client.Set(ctx, key, strconv.FormatFloat(value, 'f', -1, 64), c.ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, errors.New("timedata: not numeric")
	}
}
