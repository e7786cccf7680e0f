package search

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// domainCache remembers confident domain answers. A nil *domainCache is a
// valid, always-empty cache.
type domainCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func newDomainCache(size int) *domainCache {
	if size <= 0 {
		return nil
	}
	return &domainCache{cache: lru.New(size)}
}

func (c *domainCache) get(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.cache.Get(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *domainCache) add(key string, domain string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(key, domain)
}

func (c *domainCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cache.Len()
}
