package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares entries between instances. Keys are versioned by a
// shared epoch counter: prefix:{epoch}:{role}. Advancing the counter orphans
// every older key, which then ages out through its TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "accessctl:rbac"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func (c *RedisCache) epochKey() string {
	return c.prefix + ":epoch"
}

func (c *RedisCache) roleKey(epoch uint64, role string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, epoch, role)
}

func (c *RedisCache) Epoch(ctx context.Context) (uint64, error) {
	v, err := c.client.Get(ctx, c.epochKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache epoch: %w", err)
	}
	return v, nil
}

func (c *RedisCache) Get(ctx context.Context, epoch uint64, role string) ([]Permission, bool, error) {
	raw, err := c.client.Get(ctx, c.roleKey(epoch, role)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached role %s: %w", role, err)
	}

	var perms []Permission
	if err := json.Unmarshal(raw, &perms); err != nil {
		return nil, false, fmt.Errorf("decode cached role %s: %w", role, err)
	}
	return perms, true, nil
}

// Set writes under the caller's epoch. A write for a superseded epoch lands
// on a key no reader will compute again.
func (c *RedisCache) Set(ctx context.Context, epoch uint64, role string, perms []Permission) error {
	raw, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("encode role %s: %w", role, err)
	}
	if err := c.client.Set(ctx, c.roleKey(epoch, role), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached role %s: %w", role, err)
	}
	return nil
}

// Invalidate advances the epoch; per-role eviction is not tracked in redis.
func (c *RedisCache) Invalidate(ctx context.Context, _ ...string) error {
	return c.Purge(ctx)
}

func (c *RedisCache) Purge(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.epochKey()).Err(); err != nil {
		return fmt.Errorf("advance cache epoch: %w", err)
	}
	return nil
}
