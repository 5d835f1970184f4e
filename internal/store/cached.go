package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/docsql/internal/ir"
)

// DefaultCacheSize is the number of schemas Cached keeps when given a
// non-positive size.
const DefaultCacheSize = 64

// Cached serves Load from an LRU cache in front of another Store. Save and
// Remove go to the inner store and drop the cached entry.
//
// Cached graphs are shared between callers; schemas are read-only once
// discovered, so sharing is safe.
type Cached struct {
	inner Store
	cache *lru.Cache[string, *ir.Schema]
}

// NewCached wraps inner with an LRU cache of the given size.
func NewCached(inner Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *ir.Schema](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Load returns the cached schema or loads it from the inner store.
// Misses for unknown names are not cached.
func (c *Cached) Load(ctx context.Context, name string) (*ir.Schema, bool, error) {
	if s, ok := c.cache.Get(name); ok {
		return s, true, nil
	}
	s, ok, err := c.inner.Load(ctx, name)
	if err != nil || !ok {
		return nil, ok, err
	}
	c.cache.Add(name, s)
	return s, true, nil
}

// Save writes through to the inner store.
func (c *Cached) Save(ctx context.Context, name string, s *ir.Schema) (Version, error) {
	c.cache.Remove(name)
	return c.inner.Save(ctx, name, s)
}

// Remove deletes from the inner store and the cache.
func (c *Cached) Remove(ctx context.Context, name string) error {
	c.cache.Remove(name)
	return c.inner.Remove(ctx, name)
}

// Len returns the number of cached schemas.
func (c *Cached) Len() int {
	return c.cache.Len()
}

// Inner returns the wrapped store.
func (c *Cached) Inner() Store {
	return c.inner
}

var _ Store = (*Cached)(nil)
