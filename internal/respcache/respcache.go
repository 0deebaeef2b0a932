// Package respcache caches final model answers keyed by the normalized
// mention text, so repeated questions skip the expensive model round-trip.
//
// The key deliberately ignores tool-backed data: a cached answer can go stale
// when the underlying catalog changes. That is an accepted trade-off of the
// product, not something this package tries to detect.
package respcache

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 1024

// Options configures a Cache.
type Options struct {
	// Capacity is the maximum number of resident answers. Zero means
	// DefaultCapacity.
	Capacity int
	// TTL expires entries after the given duration. Zero keeps entries until
	// they are evicted by capacity pressure.
	TTL time.Duration
}

// Cache is a bounded, optionally expiring answer cache. Safe for concurrent
// use. Last write wins when two handlers cache the same key concurrently.
type Cache struct {
	lru *expirable.LRU[string, string]
}

// New creates a Cache.
func New(opts Options) *Cache {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		lru: expirable.NewLRU[string, string](capacity, nil, opts.TTL),
	}
}

// Get returns the cached answer for the normalized text, if present.
func (c *Cache) Get(normalized string) (string, bool) {
	if c == nil || c.lru == nil {
		return "", false
	}
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return "", false
	}
	return c.lru.Get(normalized)
}

// Put stores an answer under the normalized text. Empty keys and empty
// answers are ignored.
func (c *Cache) Put(normalized, answer string) {
	if c == nil || c.lru == nil {
		return
	}
	normalized = strings.TrimSpace(normalized)
	answer = strings.TrimSpace(answer)
	if normalized == "" || answer == "" {
		return
	}
	c.lru.Add(normalized, answer)
}

// Len returns the number of resident entries.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
