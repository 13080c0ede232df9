package cache

import (
	"path"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"flowcore/internal/logging"
	"flowcore/internal/types"
)

// MemoryProvider is the single-process development backend: an LRU-bounded
// map guarding against unbounded growth, with absolute TTL expiry checked
// on Get (spec §4.6: "entries have an absolute expiry computed at
// insertion; get must return none for expired entries").
type MemoryProvider struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, types.CacheRecord]
	log    logging.Logger
	nowFn  func() time.Time
}

// NewMemoryProvider builds a bounded in-memory cache holding at most
// maxEntries records, evicting least-recently-used entries once full.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c, _ := lru.New[string, types.CacheRecord](maxEntries)
	return &MemoryProvider{
		lru:   c,
		log:   logging.For("cache.memory"),
		nowFn: time.Now,
	}
}

func (p *MemoryProvider) Get(key string) (types.CacheRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.lru.Get(key)
	if !ok {
		return types.CacheRecord{}, false
	}
	if rec.Expired(p.nowFn()) {
		p.lru.Remove(key)
		return types.CacheRecord{}, false
	}
	return rec, true
}

func (p *MemoryProvider) Set(key string, value any, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.nowFn()
	rec := types.CacheRecord{Key: key, Value: value, StoredAt: now}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl)
	}
	p.lru.Add(key, rec)
	p.log.Debug("stored %s (ttl=%s)", key, ttl)
}

func (p *MemoryProvider) Invalidate(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lru.Remove(key)
}

// InvalidateByPattern removes every key matching a path.Match-style glob.
func (p *MemoryProvider) InvalidateByPattern(glob string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range p.lru.Keys() {
		if ok, _ := path.Match(glob, key); ok {
			p.lru.Remove(key)
		}
	}
}
