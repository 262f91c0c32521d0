// Package cache stores single-address verdicts in Redis for a bounded time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/model"
)

// DefaultTTL mirrors how long the backend keeps results around.
const DefaultTTL = 15 * time.Minute

const keyPrefix = "verify:single"

// RedisCache implements single.Cache on a go-redis client.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps client. Non-positive ttl falls back to DefaultTTL.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the server answers PING.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "cache: ping redis %s", addr)
	}
	return NewRedis(client, ttl), nil
}

// Key returns the cache key for an address at a level. Addresses are
// lower-cased here only; the verdict itself is stored as returned.
func Key(level model.Level, email string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, level, strings.ToLower(email))
}

// Get returns the cached verdict, or ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, level model.Level, email string) (*model.VerificationResult, bool, error) {
	data, err := c.client.Get(ctx, Key(level, email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: get %s", email)
	}

	var res model.VerificationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, eris.Wrapf(err, "cache: decode %s", email)
	}
	return &res, true, nil
}

// Set stores res under the level's key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, level model.Level, email string, res *model.VerificationResult) error {
	if res == nil {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return eris.Wrapf(err, "cache: encode %s", email)
	}
	return eris.Wrapf(c.client.Set(ctx, Key(level, email), data, c.ttl).Err(), "cache: set %s", email)
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
