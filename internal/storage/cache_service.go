package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService provides high-level caching for ledger read paths. Balance and
// history entries are invalidated on every ledger mutation, so a cached value
// is never older than the last mutation plus the TTL.
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyBalance is for token balance snapshots
	CacheKeyBalance CacheKeyType = "balance"
	// CacheKeyHistory is for token transaction history pages
	CacheKeyHistory CacheKeyType = "history"
	// CacheKeyPlans is for the plan catalog
	CacheKeyPlans CacheKeyType = "plans"
)

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func (c *CacheService) GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := append([]string{string(keyType)}, params...)
	return strings.Join(parts, ":")
}

// BalanceKey generates a cache key for a user's balance snapshot
func (c *CacheService) BalanceKey(userID string) string {
	return c.GenerateCacheKey(CacheKeyBalance, userID)
}

// HistoryKey generates a cache key for a user's transaction history page
func (c *CacheService) HistoryKey(userID string, limit, offset int) string {
	return c.GenerateCacheKey(CacheKeyHistory, userID, fmt.Sprintf("%d", limit), fmt.Sprintf("%d", offset))
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.redis.Set(ctx, key, data, c.ttl)
}

// Get retrieves a value from cache. The boolean reports whether the key was
// present; a miss is not an error.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return true, nil
}

// InvalidateUser removes all cached read-path entries for a user. Called after
// every ledger mutation so reads never observe a pre-mutation snapshot beyond
// the current request.
func (c *CacheService) InvalidateUser(ctx context.Context, userID string) error {
	keys, err := c.redis.Client().Keys(ctx, c.GenerateCacheKey(CacheKeyHistory, userID)+":*").Result()
	if err != nil {
		return fmt.Errorf("failed to list history keys: %w", err)
	}

	keys = append(keys, c.BalanceKey(userID))
	return c.redis.Del(ctx, keys...)
}
