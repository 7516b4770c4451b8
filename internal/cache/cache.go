// Package cache short-circuits repeat requests for the same content
// fingerprint. Entries are derived, not authoritative: last-writer-wins
// and TTL expiry are acceptable.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/model"
)

type key struct {
	fingerprint string
	depth       model.Depth
}

type entry struct {
	result    model.ConsensusResult
	createdAt time.Time
}

// Cache is an in-memory, read-mostly result cache keyed by
// (fingerprint, depth). The depth key carries the source-count
// guarantee: an entry cached at a given depth was produced under that
// depth's selection ceiling, so an entry at the requested depth or
// deeper always qualifies, while a shallower one never does.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]entry
	ttl     time.Duration

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a cache. ttl <= 0 defaults to 1h.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		entries: make(map[key]entry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Get returns a cached result valid for the requested depth. An entry
// cached at the requested depth or deeper qualifies; a cheap basic
// result never satisfies a deep request, while a deep result satisfies
// a basic one.
func (c *Cache) Get(fingerprint string, depth model.Depth) (model.ConsensusResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.nowFunc()
	for _, d := range []model.Depth{model.DepthBasic, model.DepthComprehensive, model.DepthDeep} {
		if d.Rank() < depth.Rank() {
			continue
		}
		e, ok := c.entries[key{fingerprint, d}]
		if !ok {
			continue
		}
		if now.Sub(e.createdAt) > c.ttl {
			continue
		}
		return e.result, true
	}
	return model.ConsensusResult{}, false
}

// Put stores a result for the fingerprint and depth. Idempotent;
// last-writer-wins.
func (c *Cache) Put(fingerprint string, depth model.Depth, result model.ConsensusResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{fingerprint, depth}] = entry{
		result:    result,
		createdAt: c.nowFunc(),
	}
}

// PurgeExpired drops entries past their TTL and returns how many were
// removed.
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	var purged int
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, k)
			purged++
		}
	}
	if purged > 0 {
		zap.L().Debug("result cache purged", zap.Int("entries", purged))
	}
	return purged
}

// Len returns the number of live entries, counting expired ones that have
// not been purged yet.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
