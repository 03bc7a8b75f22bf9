package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisReportCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisReportCache(client redis.UniversalClient, ttl time.Duration) *RedisReportCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisReportCache{client: client, ttl: ttl}
}

// Key builds the cache key for an owner-scoped report. Keeping the owner as
// the second segment lets Invalidate match every report for that owner.
func Key(ownerID string, parts ...string) string {
	key := "report:" + ownerID
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[cache] WARN: get %s: %v", key, err)
		}
		return nil, false
	}
	return value, true
}

func (c *RedisReportCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		log.Printf("[cache] WARN: set %s: %v", key, err)
	}
}

// Invalidate drops every cached report for the owner. Called after any write
// that changes what the dashboard would show.
func (c *RedisReportCache) Invalidate(ctx context.Context, ownerID string) {
	pattern := Key(ownerID) + ":*"
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			log.Printf("[cache] WARN: scan %s: %v", pattern, err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				log.Printf("[cache] WARN: del: %v", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
