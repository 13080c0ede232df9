// Package cache implements the task-response cache provider from spec
// §4.6: get/set/invalidate/invalidateByPattern behind a backend-agnostic
// interface, with an in-memory (development) and a Redis-backed
// (production) implementation, modeled on compozy's
// engine/infra/cache/adapter_redis.go RedisAdapter and the hashicorp
// golang-lru bounded map used as the in-process backend in the same
// package's sibling stores.
package cache

import (
	"time"

	"flowcore/internal/types"
)

// Provider is the capability the orchestrator depends on (spec §9:
// capability-based abstraction, not an inheritance hierarchy). Key
// derivation is the caller's responsibility; the provider never hashes
// anything itself.
type Provider interface {
	Get(key string) (types.CacheRecord, bool)
	Set(key string, value any, ttl time.Duration)
	Invalidate(key string)
	InvalidateByPattern(glob string)
}
