package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

const DefaultCacheCost int64 = 1
const DefaultCacheTTL time.Duration = time.Hour

// Cache is a namespaced TTL cache, safe for use by concurrent sessions.
type Cache struct {
	c *ristretto.Cache
}

func NewCache() (*Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,     // number of keys to track frequency of (100k).
		MaxCost:     1 << 16, // every entry costs 1, so at most 64k entries.
		BufferItems: 64,      // number of keys per Get buffer.
	})
	if err != nil {
		return nil, errors.WithMessage(err, "NewCache")
	}

	c := &Cache{
		c: cache,
	}

	return c, nil
}

func (c *Cache) Get(namespace, key string) (interface{}, bool) {
	v, ok := c.c.Get(fmt.Sprintf("%s:%s", namespace, key))
	return v, ok
}

func (c *Cache) Set(namespace, key string, v interface{}) {
	c.SetWithTTL(namespace, key, v, DefaultCacheTTL)
}

func (c *Cache) SetWithTTL(namespace, key string, v interface{}, ttl time.Duration) {
	c.c.SetWithTTL(fmt.Sprintf("%s:%s", namespace, key), v, DefaultCacheCost, ttl)
}

func (c *Cache) Close() {
	c.c.Close()
}
