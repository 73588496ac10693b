package whitelist

// BloomFilter is the minimal interface the index needs from a Bloom filter.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for capacity keys at fpRate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches whitelist answers by hostname with basic metrics.
type DecisionCache interface {
	Get(host string) (allowed bool, ok bool)
	Put(host string, allowed bool)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}
