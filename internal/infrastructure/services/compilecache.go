package services

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// compileCache memoizes compiled artifacts (regexes, schemas, XPath
// expressions) by source text, including compile failures.
type compileCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type compiled struct {
	value any
	err   error
}

func newCompileCache(size int) *compileCache {
	if size <= 0 {
		size = 256
	}
	return &compileCache{cache: lru.New(size)}
}

func (c *compileCache) get(key string, compile func() (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		e := v.(compiled)
		return e.value, e.err
	}
	c.mu.Unlock()

	value, err := compile()

	c.mu.Lock()
	c.cache.Add(key, compiled{value: value, err: err})
	c.mu.Unlock()
	return value, err
}
