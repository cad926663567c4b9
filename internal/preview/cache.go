package preview

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notedrop_preview_cache_hits_total",
		Help: "Preview lookups served from the cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notedrop_preview_cache_misses_total",
		Help: "Preview lookups that required extraction.",
	})
)

// Cache keeps extracted previews keyed by note id with a TTL.
type Cache struct {
	lru *expirable.LRU[string, Result]
}

// NewCache creates a Cache holding at most size entries for ttl each.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, Result](size, nil, ttl)}
}

// Get returns the cached preview for noteID.
func (c *Cache) Get(noteID string) (Result, bool) {
	res, ok := c.lru.Get(noteID)
	if ok {
		cacheHitsTotal.Inc()
		return res, true
	}
	cacheMissesTotal.Inc()
	return Result{}, false
}

// Set stores res for noteID.
func (c *Cache) Set(noteID string, res Result) {
	c.lru.Add(noteID, res)
}

// Evict drops noteID, e.g. after the note is deleted.
func (c *Cache) Evict(noteID string) {
	c.lru.Remove(noteID)
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
