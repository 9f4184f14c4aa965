package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache is a bounded, TTL-refreshed cache. Concurrent misses for the same
// key share one fetch. A stale entry is served while a background refresh
// replaces it.
type Cache[T any] struct {
	entries *lru.Cache[string, entry[T]]
	sfg     singleflight.Group
	ttl     time.Duration
}

func New[T any](size int, ttl time.Duration) (*Cache[T], error) {
	entries, err := lru.New[string, entry[T]](size)
	if err != nil {
		return nil, err
	}
	return &Cache[T]{entries: entries, ttl: ttl}, nil
}

// Get returns the cached value for key, calling fn on a miss. Errors are
// not cached.
func (c *Cache[T]) Get(key string, fn func() (T, error)) (T, error) {
	if e, ok := c.entries.Get(key); ok {
		if c.ttl > 0 && time.Since(e.fetchedAt) > c.ttl {
			go func() {
				c.sfg.Do("refresh:"+key, func() (any, error) {
					res, err := fn()
					if err == nil {
						c.entries.Add(key, entry[T]{value: res, fetchedAt: time.Now()})
					}
					return nil, nil
				})
			}()
		}
		return e.value, nil
	}

	v, err, _ := c.sfg.Do("get:"+key, func() (any, error) {
		if e, ok := c.entries.Get(key); ok {
			return e, nil
		}
		res, err := fn()
		if err != nil {
			return nil, err
		}
		e := entry[T]{value: res, fetchedAt: time.Now()}
		c.entries.Add(key, e)
		return e, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(entry[T]).value, nil
}
