package lru

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/navgate/internal/navgate/repos/whitelist"
)

// decisionCache is an LRU-backed implementation of whitelist.DecisionCache.
// It tracks hits, misses and evictions.
type decisionCache struct {
	lru       *lru.Cache[string, bool]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

var newLRU = func(size int, onEvict func(string, bool)) (*lru.Cache[string, bool], error) {
	return lru.NewWithEvict(size, onEvict)
}

// New creates a DecisionCache with the given capacity. If size <= 0, a
// disabled cache is returned that always misses.
func New(size int) (whitelist.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var dc decisionCache
	// Purge-induced evictions are counted too.
	cache, err := newLRU(size, func(string, bool) {
		atomic.AddUint64(&dc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	dc.lru = cache
	return &dc, nil
}

// Factory returns a constructor suitable for whitelist.Options.NewCache. An
// unusable size falls back to the disabled cache.
func Factory(size int) func() whitelist.DecisionCache {
	return func() whitelist.DecisionCache {
		c, err := New(size)
		if err != nil {
			return &disabledCache{}
		}
		return c
	}
}

func (c *decisionCache) Get(host string) (bool, bool) {
	if v, ok := c.lru.Get(host); ok {
		atomic.AddUint64(&c.hits, 1)
		return v, true
	}
	atomic.AddUint64(&c.misses, 1)
	return false, false
}

func (c *decisionCache) Put(host string, allowed bool) { c.lru.Add(host, allowed) }

func (c *decisionCache) Len() int { return c.lru.Len() }

func (c *decisionCache) Purge() { c.lru.Purge() }

func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

func (d *disabledCache) Get(string) (bool, bool)         { return false, false }
func (d *disabledCache) Put(string, bool)                {}
func (d *disabledCache) Len() int                        { return 0 }
func (d *disabledCache) Purge()                          {}
func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ whitelist.DecisionCache = (*decisionCache)(nil)
var _ whitelist.DecisionCache = (*disabledCache)(nil)
