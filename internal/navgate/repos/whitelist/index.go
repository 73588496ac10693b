package whitelist

import (
	"sync"

	"github.com/haukened/navgate/internal/navgate/domain"
)

// Index is the compiled form of one whitelist snapshot. Lookups follow a
// cache → exact → bloom → suffix set pipeline and always agree with
// matcher.IsWhitelisted for the same snapshot.
type Index struct {
	mu       sync.Mutex
	exact    map[string]struct{}
	suffixes map[string]struct{}
	bloom    BloomFilter
	cache    DecisionCache
}

// Options configures how an Index is built. Zero values disable the optional
// stages: without Bloom every suffix is checked against the set, without
// NewCache nothing is memoised.
type Options struct {
	Bloom    BloomFactory
	FPRate   float64
	NewCache func() DecisionCache
}

// NewIndex compiles entries into an Index.
func NewIndex(entries []string, opts Options) *Index {
	idx := &Index{
		exact:    make(map[string]struct{}, len(entries)),
		suffixes: make(map[string]struct{}),
	}
	for _, e := range entries {
		if s, ok := domain.WildcardSuffix(e); ok {
			idx.suffixes[s] = struct{}{}
			continue
		}
		idx.exact[e] = struct{}{}
	}
	if opts.Bloom != nil && len(idx.suffixes) > 0 {
		idx.bloom = opts.Bloom.New(uint64(len(idx.suffixes)), opts.FPRate)
		for s := range idx.suffixes {
			idx.bloom.Add([]byte(s))
		}
	}
	if opts.NewCache != nil {
		idx.cache = opts.NewCache()
	}
	return idx
}

// Contains reports whether host is whitelisted by this snapshot.
func (i *Index) Contains(host string) bool {
	if i.cache != nil {
		i.mu.Lock()
		v, ok := i.cache.Get(host)
		i.mu.Unlock()
		if ok {
			return v
		}
	}
	allowed := i.lookup(host)
	if i.cache != nil {
		i.mu.Lock()
		i.cache.Put(host, allowed)
		i.mu.Unlock()
	}
	return allowed
}

// Len returns the number of distinct entries compiled into the index.
func (i *Index) Len() int { return len(i.exact) + len(i.suffixes) }

// Stats returns decision cache counters, zero when caching is off.
func (i *Index) Stats() (hits, misses, evictions uint64) {
	if i.cache == nil {
		return 0, 0, 0
	}
	return i.cache.Stats()
}

func (i *Index) lookup(host string) bool {
	if _, ok := i.exact[host]; ok {
		return true
	}
	if len(i.suffixes) == 0 {
		return false
	}
	// every byte suffix of host, including the empty one, is a candidate
	for n := 0; n <= len(host); n++ {
		s := host[n:]
		if i.bloom != nil && !i.bloom.MightContain([]byte(s)) {
			continue
		}
		if _, ok := i.suffixes[s]; ok {
			return true
		}
	}
	return false
}
