package badger

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type storeFunc[K comparable, V any] func(key K, val V) error

type retrieveFunc[K comparable, V any] func(key K) (V, error)

// Cache is a read-through and write-through LRU cache in front of a badger
// backed store.
type Cache[K comparable, V any] struct {
	store    storeFunc[K, V]
	retrieve retrieveFunc[K, V]
	cache    *lru.Cache[K, V]
}

func newCache[K comparable, V any](limit int, store storeFunc[K, V], retrieve retrieveFunc[K, V]) *Cache[K, V] {
	cache, err := lru.New[K, V](limit)
	if err != nil {
		panic(fmt.Sprintf("could not create cache: %v", err))
	}
	return &Cache[K, V]{
		store:    store,
		retrieve: retrieve,
		cache:    cache,
	}
}

// Get will try to retrieve the resource from cache first, and then from the
// injected retrieve function. The bool reports a cache hit.
func (c *Cache[K, V]) Get(key K) (V, bool, error) {
	resource, cached := c.cache.Get(key)
	if cached {
		return resource, true, nil
	}

	resource, err := c.retrieve(key)
	if err != nil {
		var zero V
		return zero, false, fmt.Errorf("could not retrieve resource: %w", err)
	}

	c.cache.Add(key, resource)
	return resource, false, nil
}

// Put will store the resource and add it to the cache.
func (c *Cache[K, V]) Put(key K, resource V) error {
	err := c.store(key, resource)
	if err != nil {
		return fmt.Errorf("could not store resource: %w", err)
	}
	c.cache.Add(key, resource)
	return nil
}

// Remove evicts the key from the cache only.
func (c *Cache[K, V]) Remove(key K) {
	c.cache.Remove(key)
}
