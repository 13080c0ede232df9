package circuitbreaker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"flowcore/internal/logging"
	"flowcore/internal/types"
)

// RedisStore is the distributed backend (spec §4.7): CAS is implemented
// as a bounded-retry optimistic loop using a Lua script so the
// read-version-compare-write is atomic from Redis's perspective, avoiding
// the thundering-herd of concurrent half-open probes the spec calls out.
// Grounded on compozy's engine/infra/cache/adapter_redis.go use of
// client.Eval for atomicity (luaAppendTrimMeta), adapted to a
// compare-and-swap script instead of an append/trim script.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ctx       context.Context
	log       logging.Logger
}

func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, ctx: context.Background(), log: logging.For("circuitbreaker.redis")}
}

func (s *RedisStore) prefixed(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (types.CircuitState, error) {
	raw, err := s.client.Get(ctx, s.prefixed(key)).Result()
	if err == redis.Nil {
		return newState(key), nil
	}
	if err != nil {
		return types.CircuitState{}, err
	}
	var st types.CircuitState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return types.CircuitState{}, err
	}
	return st, nil
}

// casScript atomically compares the stored Version to ARGV[2] and, if it
// matches (or the key is absent and ARGV[2] is "0"), writes ARGV[1] in its
// place. Returns 1 on success, 0 on a version mismatch.
const casScript = `
local cur = redis.call('GET', KEYS[1])
local curVersion = "0"
if cur then
  local decoded = cjson.decode(cur)
  curVersion = tostring(decoded.version or decoded.Version or 0)
end
if curVersion ~= ARGV[2] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`

func (s *RedisStore) CompareAndSet(ctx context.Context, key string, expected, next types.CircuitState) (bool, error) {
	next.Key = key
	next.Version = expected.Version + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	res, err := s.client.Eval(ctx, casScript,
		[]string{s.prefixed(key)},
		string(payload), expected.Version,
	).Result()
	if err != nil {
		s.log.Error("cas %s: %v", key, err)
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// List scans for every key under this store's prefix. Used by the admin
// API's list() operation; acceptable cost since it is an operator-facing
// call, not a hot path.
func (s *RedisStore) List(ctx context.Context) ([]types.CircuitState, error) {
	var out []types.CircuitState
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			raw, err := s.client.Get(ctx, k).Result()
			if err != nil {
				continue
			}
			var st types.CircuitState
			if json.Unmarshal([]byte(raw), &st) == nil {
				out = append(out, st)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}
