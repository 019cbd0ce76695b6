// Package cache provides a sharded last-price cache so hot read paths do not
// contend on one lock and repeated quote lookups stay off the request budget.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// QuoteCache holds the most recent price per symbol with its capture time.
type QuoteCache struct {
	shards [numShards]*quoteShard
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]quoteEntry
}

type quoteEntry struct {
	price      float64
	capturedAt time.Time
}

// NewQuoteCache creates an empty cache.
func NewQuoteCache() *QuoteCache {
	c := &QuoteCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &quoteShard{items: make(map[string]quoteEntry)}
	}
	return c
}

func (c *QuoteCache) shardFor(symbol string) *quoteShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%numShards]
}

// Put stores the latest price for a symbol.
func (c *QuoteCache) Put(symbol string, price float64) {
	shard := c.shardFor(symbol)
	shard.mu.Lock()
	shard.items[symbol] = quoteEntry{price: price, capturedAt: time.Now()}
	shard.mu.Unlock()
}

// Fresh returns the cached price when it is younger than maxAge.
func (c *QuoteCache) Fresh(symbol string, maxAge time.Duration) (float64, bool) {
	shard := c.shardFor(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	if !ok || time.Since(entry.capturedAt) > maxAge {
		return 0, false
	}
	return entry.price, true
}

// Len returns the number of cached symbols.
func (c *QuoteCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Purge drops entries older than maxAge and returns how many were removed.
func (c *QuoteCache) Purge(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, shard := range c.shards {
		shard.mu.Lock()
		for sym, entry := range shard.items {
			if entry.capturedAt.Before(cutoff) {
				delete(shard.items, sym)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
