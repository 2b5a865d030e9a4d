// Package cache implements the content-addressed result cache.
//
// Keys are BLAKE2b hashes over every request input that can affect the
// result: the content bytes, the caller's format hints, and the
// output-affecting config fingerprint. Values are shared immutable
// snapshots: a mutation
// only ever replaces a map entry wholesale, never edits a value in place
// while other holders may be reading it. Concurrent misses on the same key
// share one in-flight computation via singleflight, so identical requests
// never duplicate work.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/textract"
)

// Stats is a point-in-time snapshot of cache counters. Hits and misses are
// monotonically increasing between Clear calls; Hits+Misses equals the
// number of lookups since the last Clear.
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Cache is a capacity-bounded, concurrency-safe result store with LRU
// eviction and in-flight deduplication.
type Cache struct {
	entries *lru.Cache[string, *textract.Result]
	group   singleflight.Group
	hits    atomic.Uint64
	misses  atomic.Uint64

	// mu serializes Clear against counter increments so that a cleared
	// cache restarts counting from zero, not from a pre-clear snapshot.
	mu sync.RWMutex
}

// DefaultCapacity bounds the cache when the caller does not set one.
const DefaultCapacity = 256

// New creates a cache bounded to capacity entries. Non-positive capacity
// falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	// lru.New only fails for non-positive sizes, excluded above.
	entries, err := lru.New[string, *textract.Result](capacity)
	if err != nil {
		panic(fmt.Sprintf("cache: %v", err))
	}
	return &Cache{entries: entries}
}

// Key derives the deterministic cache key over the given request parts.
// Every part is length-prefixed before hashing so distinct part tuples
// cannot collide by concatenation.
func Key(parts ...[]byte) string {
	h, _ := blake2b.New256(nil)
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetOrCompute returns the cached result for key, or runs compute exactly
// once for concurrent callers of the same key and caches its value.
// Callers whose ctx expires while waiting receive the context error; an
// aborted or failed computation is forgotten so a later retry for the same
// key is not permanently blocked.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (*textract.Result, error)) (*textract.Result, error) {
	c.mu.RLock()
	if v, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		c.mu.RUnlock()
		return v, nil
	}
	c.misses.Add(1)
	c.mu.RUnlock()

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := compute(ctx)
		if err != nil {
			// Release the slot: the next request for this key must be
			// able to start a fresh computation.
			c.group.Forget(key)
			return nil, err
		}
		c.mu.RLock()
		c.entries.Add(key, v)
		c.mu.RUnlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*textract.Result), nil
	case <-ctx.Done():
		// Leave the computation running for any sharers still waiting;
		// this caller bails with its own deadline error.
		return nil, ctx.Err()
	}
}

// Get returns the cached value without counting a computation.
func (c *Cache) Get(key string) (*textract.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Stats returns current counters. Safe to call concurrently with writes.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.entries.Len(),
	}
}

// Clear atomically empties the cache and resets counters to zero.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
