package nametag

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// tagCache is an LRU-backed TagCache that tracks hits, misses and
// evictions.
type tagCache struct {
	lru       *lru.Cache[string, Tag]
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op TagCache used when size <= 0.
type disabledCache struct{}

// NewCache creates a TagCache with the given capacity. If size <= 0 a
// disabled cache is returned that always misses.
func NewCache(size int) (TagCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	var tc tagCache
	cache, err := lru.NewWithEvict(size, func(string, Tag) {
		atomic.AddUint64(&tc.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	tc.lru = cache
	return &tc, nil
}

func (c *tagCache) Get(name string) (Tag, bool) {
	if t, ok := c.lru.Get(name); ok {
		atomic.AddUint64(&c.hits, 1)
		return t, true
	}
	atomic.AddUint64(&c.misses, 1)
	return TagNone, false
}

func (c *tagCache) Put(name string, t Tag) {
	c.lru.Add(name, t)
}

func (c *tagCache) Len() int { return c.lru.Len() }

func (c *tagCache) Purge() { c.lru.Purge() }

func (c *tagCache) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), atomic.LoadUint64(&c.evictions)
}

func (d *disabledCache) Get(string) (Tag, bool) { return TagNone, false }

func (d *disabledCache) Put(string, Tag) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ TagCache = (*tagCache)(nil)
var _ TagCache = (*disabledCache)(nil)
