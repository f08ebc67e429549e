// Package cache provides the in-process page cache that fronts the
// ledger store for all list and search reads.
package cache

import (
	"sync"
	"time"
)

// EntityType partitions the cache so a write can drop every page that
// could have gone stale without tracking individual keys.
type EntityType string

const (
	Customers    EntityType = "customers"
	Transactions EntityType = "transactions"
	Search       EntityType = "search"
	Prices       EntityType = "prices"
)

type pageKey struct {
	entity EntityType
	query  string
	page   int
}

// Page is one cached result page. Items is stored as whatever slice the
// caller put in; callers type-assert on the way out and treat a failed
// assertion as a miss.
type Page struct {
	Items    interface{}
	HasMore  bool
	StoredAt time.Time
}

// PageCache is a read-through cache keyed by (entity, query, page).
// Entries have no TTL: they live until an explicit Invalidate or process
// restart. It is owned by the service facade, not package state, so
// independent store instances in one test process get independent
// caches.
type PageCache struct {
	mu    sync.RWMutex
	pages map[pageKey]Page
}

func NewPageCache() *PageCache {
	return &PageCache{pages: make(map[pageKey]Page)}
}

// Get returns the cached page and whether it was present.
func (c *PageCache) Get(entity EntityType, query string, page int) (Page, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pages[pageKey{entity, query, page}]
	return p, ok
}

// Put stores one result page.
func (c *PageCache) Put(entity EntityType, query string, page int, items interface{}, hasMore bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[pageKey{entity, query, page}] = Page{Items: items, HasMore: hasMore, StoredAt: time.Now()}
}

// Invalidate drops every entry for the entity type. Invalidation is
// coarse on purpose: over-invalidating costs one extra store read,
// under-invalidating shows a stale balance to the operator.
func (c *PageCache) Invalidate(entity EntityType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.pages {
		if k.entity == entity {
			delete(c.pages, k)
		}
	}
}

// InvalidateAll drops everything, used after a snapshot import.
func (c *PageCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = make(map[pageKey]Page)
}

// Len reports the number of cached pages (test helper).
func (c *PageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}
