package meta

import (
	"sync"

	"go.uber.org/atomic"
)

// CacheStats tracks ARC hit/miss/eviction counters (§4.B, §8 "cache hit
// ratio after a Zipfian workload").
type CacheStats struct {
	Hits      atomic.Uint64
	Misses    atomic.Uint64
	Evictions atomic.Uint64
	T1Hits    atomic.Uint64
	T2Hits    atomic.Uint64
}

// HitRatio returns hits / (hits + misses), or 0 if nothing was recorded.
func (s *CacheStats) HitRatio() float64 {
	hits := float64(s.Hits.Load())
	misses := float64(s.Misses.Load())
	total := hits + misses
	if total == 0 {
		return 0
	}
	return hits / total
}

func (s *CacheStats) Reset() {
	s.Hits.Store(0)
	s.Misses.Store(0)
	s.Evictions.Store(0)
	s.T1Hits.Store(0)
	s.T2Hits.Store(0)
}

// ArcCache is an Adaptive Replacement Cache over the metadata index:
// T1/T2 residency lists, B1/B2 ghost lists, and an adaptively tuned target
// size p (§4.B). Eviction prefers T1 when |T1| > p (or >= p on a B2 ghost
// hit); ghost hits in B1 grow p, ghost hits in B2 shrink it.
type ArcCache struct {
	mu sync.Mutex

	t1, t2, b1, b2 []string
	cache          map[string][]byte
	p, capacity    int

	stats CacheStats
}

func NewArcCache(capacity int) *ArcCache {
	return &ArcCache{
		cache:    make(map[string][]byte, capacity),
		capacity: capacity,
	}
}

func removeKey(list []string, key string) []string {
	for i, k := range list {
		if k == key {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func contains(list []string, key string) bool {
	for _, k := range list {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the cached value for key, promoting it within T1/T2 on a
// hit. Returns ok=false on a miss.
func (c *ArcCache) Get(key []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)

	if contains(c.t1, k) {
		c.t1 = removeKey(c.t1, k)
		c.t2 = append(c.t2, k)
		c.stats.Hits.Inc()
		c.stats.T1Hits.Inc()
		v := c.cache[k]
		return v, true
	}
	if contains(c.t2, k) {
		c.t2 = removeKey(c.t2, k)
		c.t2 = append(c.t2, k)
		c.stats.Hits.Inc()
		c.stats.T2Hits.Inc()
		v := c.cache[k]
		return v, true
	}
	c.stats.Misses.Inc()
	return nil, false
}

// Put inserts or updates key's cached value, running the full ARC
// put/replace/adapt state machine (§4.B).
func (c *ArcCache) Put(key []byte, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)

	// Case 1: hit in T1 or T2 — refresh value, move to T2 tail.
	if contains(c.t1, k) {
		c.t1 = removeKey(c.t1, k)
		c.t2 = append(c.t2, k)
		c.cache[k] = value
		return
	}
	if contains(c.t2, k) {
		c.t2 = removeKey(c.t2, k)
		c.t2 = append(c.t2, k)
		c.cache[k] = value
		return
	}

	// Case 2: ghost hit in B1 — grow p, replace favoring T2, add to T2.
	if contains(c.b1, k) {
		delta := maxInt(1, len(c.b2)/maxInt(len(c.b1), 1))
		c.p = minInt(c.capacity, c.p+delta)
		c.b1 = removeKey(c.b1, k)
		c.replace(false)
		c.t2 = append(c.t2, k)
		c.cache[k] = value
		return
	}

	// Case 3: ghost hit in B2 — shrink p, replace favoring T1, add to T2.
	if contains(c.b2, k) {
		delta := maxInt(1, len(c.b1)/maxInt(len(c.b2), 1))
		c.p = maxInt(0, c.p-delta)
		c.b2 = removeKey(c.b2, k)
		c.replace(true)
		c.t2 = append(c.t2, k)
		c.cache[k] = value
		return
	}

	// Case 4: brand-new key.
	l1Size := len(c.t1) + len(c.b1)
	cacheSize := len(c.t1) + len(c.t2)
	ghostSize := len(c.b1) + len(c.b2)

	if l1Size == c.capacity {
		if len(c.t1) < c.capacity {
			if len(c.b1) > 0 {
				c.b1 = c.b1[1:]
			}
			c.replace(false)
		} else if len(c.t1) > 0 {
			evicted := c.t1[0]
			c.t1 = c.t1[1:]
			delete(c.cache, evicted)
			c.b1 = append(c.b1, evicted)
			c.stats.Evictions.Inc()
		}
	} else if l1Size < c.capacity && cacheSize+ghostSize >= c.capacity {
		if cacheSize+ghostSize == 2*c.capacity && len(c.b2) > 0 {
			c.b2 = c.b2[1:]
		}
		c.replace(false)
	}

	c.t1 = append(c.t1, k)
	c.cache[k] = value
}

// replace evicts one entry from T1 or T2 into the matching ghost list,
// following the same T1-vs-T2 comparison the ghost-hit cases feed into.
func (c *ArcCache) replace(inB2 bool) {
	if len(c.t1)+len(c.t2) == 0 {
		return
	}
	t1Len := len(c.t1)
	evictFromT1 := false
	if t1Len > 0 {
		if inB2 {
			evictFromT1 = t1Len >= c.p
		} else {
			evictFromT1 = t1Len > c.p
		}
	}

	if evictFromT1 {
		evicted := c.t1[0]
		c.t1 = c.t1[1:]
		delete(c.cache, evicted)
		c.b1 = append(c.b1, evicted)
		c.stats.Evictions.Inc()
	} else if len(c.t2) > 0 {
		evicted := c.t2[0]
		c.t2 = c.t2[1:]
		delete(c.cache, evicted)
		c.b2 = append(c.b2, evicted)
		c.stats.Evictions.Inc()
	}
}

// Remove drops key from whichever list holds it and from the cache map.
func (c *ArcCache) Remove(key []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)
	c.t1 = removeKey(c.t1, k)
	c.t2 = removeKey(c.t2, k)
	c.b1 = removeKey(c.b1, k)
	c.b2 = removeKey(c.b2, k)
	v, ok := c.cache[k]
	delete(c.cache, k)
	return v, ok
}

// Contains reports whether key is currently cached (T1 or T2).
func (c *ArcCache) Contains(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.cache[string(key)]
	return ok
}

// Clear empties every list and resets p.
func (c *ArcCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t1, c.t2, c.b1, c.b2 = nil, nil, nil, nil
	c.cache = make(map[string][]byte, c.capacity)
	c.p = 0
}

func (c *ArcCache) Stats() *CacheStats { return &c.stats }

func (c *ArcCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// DebugInfo reports internal ARC list sizes, for diagnostics/tests.
type ArcDebugInfo struct {
	T1Len, T2Len, B1Len, B2Len, P, Capacity int
}

func (c *ArcCache) DebugInfo() ArcDebugInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ArcDebugInfo{
		T1Len: len(c.t1), T2Len: len(c.t2),
		B1Len: len(c.b1), B2Len: len(c.b2),
		P: c.p, Capacity: c.capacity,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
