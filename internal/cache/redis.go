package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"flowcore/internal/logging"
	"flowcore/internal/types"
)

// RedisProvider is the distributed, multi-process backend, modeled on
// compozy's engine/infra/cache/adapter_redis.go RedisAdapter: a thin
// wrapper translating Provider calls into redis.Client commands, with
// SCAN-based pattern invalidation instead of the blocking KEYS command.
type RedisProvider struct {
	client    *redis.Client
	keyPrefix string
	ctx       context.Context
	log       logging.Logger
}

// NewRedisProvider wraps an already-constructed redis client. keyPrefix
// namespaces every key so the cache can share a Redis instance with the
// circuit breaker's distributed store.
func NewRedisProvider(client *redis.Client, keyPrefix string) *RedisProvider {
	return &RedisProvider{
		client:    client,
		keyPrefix: keyPrefix,
		ctx:       context.Background(),
		log:       logging.For("cache.redis"),
	}
}

func (p *RedisProvider) prefixed(key string) string {
	return p.keyPrefix + key
}

func (p *RedisProvider) Get(key string) (types.CacheRecord, bool) {
	raw, err := p.client.Get(p.ctx, p.prefixed(key)).Result()
	if err == redis.Nil {
		return types.CacheRecord{}, false
	}
	if err != nil {
		p.log.Error("get %s: %v", key, err)
		return types.CacheRecord{}, false
	}
	var rec types.CacheRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		p.log.Error("decode %s: %v", key, err)
		return types.CacheRecord{}, false
	}
	if rec.Expired(time.Now()) {
		return types.CacheRecord{}, false
	}
	return rec, true
}

func (p *RedisProvider) Set(key string, value any, ttl time.Duration) {
	now := time.Now()
	rec := types.CacheRecord{Key: key, Value: value, StoredAt: now}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		p.log.Error("encode %s: %v", key, err)
		return
	}
	if err := p.client.Set(p.ctx, p.prefixed(key), raw, ttl).Err(); err != nil {
		p.log.Error("set %s: %v", key, err)
	}
}

func (p *RedisProvider) Invalidate(key string) {
	if err := p.client.Del(p.ctx, p.prefixed(key)).Err(); err != nil {
		p.log.Error("del %s: %v", key, err)
	}
}

// InvalidateByPattern uses SCAN rather than KEYS so a large cache doesn't
// block the shared Redis instance (spec §4.6 backend is "shared across
// executions").
func (p *RedisProvider) InvalidateByPattern(glob string) {
	pattern := p.prefixed(glob)
	var cursor uint64
	for {
		keys, next, err := p.client.Scan(p.ctx, cursor, pattern, 100).Result()
		if err != nil {
			p.log.Error("scan %s: %v", pattern, err)
			return
		}
		if len(keys) > 0 {
			if err := p.client.Del(p.ctx, keys...).Err(); err != nil {
				p.log.Error("del batch: %v", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
}
