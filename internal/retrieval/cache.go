package retrieval

import (
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cryptique-io-codehub/cryptique-sub010/pkg/types"
)

// cacheEntry is a cached query result with its expiration time
type cacheEntry struct {
	results   []types.SimilarityResult
	expiresAt time.Time
}

// queryCache is an LRU of query results with a fixed TTL. gen counts
// purges; a result computed before a purge is never stored after it.
type queryCache struct {
	mu    sync.RWMutex
	cache *lru.Cache[[32]byte, *cacheEntry]
	gen   uint64
	ttl   time.Duration
	now   func() time.Time
}

func newQueryCache(size int, ttl time.Duration) *queryCache {
	cache, err := lru.New[[32]byte, *cacheEntry](size)
	if err != nil {
		// lru.New only fails for a non-positive size, which WithQueryCache rules out
		panic(err)
	}
	return &queryCache{cache: cache, ttl: ttl, now: time.Now}
}

// queryKey hashes everything that affects a query's results
func queryKey(text string, filter *types.Filter, k int) [32]byte {
	payload, _ := json.Marshal(struct {
		Text   string
		Filter *types.Filter
		K      int
	}{text, filter, k})
	return sha256.Sum256(payload)
}

func (c *queryCache) get(key [32]byte) ([]types.SimilarityResult, bool) {
	now := c.now()

	c.mu.RLock()
	entry, found := c.cache.Get(key)
	if !found {
		c.mu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		c.mu.RUnlock()

		c.mu.Lock()
		c.cache.Remove(key)
		c.mu.Unlock()
		return nil, false
	}

	results := copyResults(entry.results)
	c.mu.RUnlock()
	return results, true
}

// generation returns the current purge count; pass it to set
func (c *queryCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// set stores results computed at generation gen. It does nothing if the
// cache was purged since.
func (c *queryCache) set(key [32]byte, results []types.SimilarityResult, gen uint64) {
	entry := &cacheEntry{
		results:   copyResults(results),
		expiresAt: c.now().Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.cache.Add(key, entry)
}

func (c *queryCache) purge() {
	c.mu.Lock()
	c.gen++
	c.cache.Purge()
	c.mu.Unlock()
}

func (c *queryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// copyResults deep-copies results so callers cannot mutate cached entries
func copyResults(src []types.SimilarityResult) []types.SimilarityResult {
	dst := make([]types.SimilarityResult, len(src))
	for i, r := range src {
		r.Metadata.Metrics = append([]string(nil), r.Metadata.Metrics...)
		dst[i] = r
	}
	return dst
}
