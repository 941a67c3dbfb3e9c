package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cpretzinger/idudesRAG/internal/logger"
)

const (
	DefaultRedisPrefix = "rag:embed:"
	DefaultRedisTTL    = time.Hour
)

// RedisCache shares vectors between processes. Redis errors are logged and treated as misses.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

func NewRedisCache(client redis.Cmdable, prefix string, ttl time.Duration, log logger.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	if log == nil {
		log = logger.NewForTests()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Embedding cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("Embedding cache entry is corrupt", "key", key, "error", err)
		return nil, false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key string, vector []float32) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("Embedding cache write failed", "key", key, "error", err)
	}
}
