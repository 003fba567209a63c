package query

import (
	"context"
	"time"
)

// Query describes how to load one cache entry.
type Query[T any] struct {
	Key       Key
	StaleTime time.Duration
	// Disabled queries never call Fn and leave the entry idle.
	Disabled bool
	Fn       func(ctx context.Context) (T, error)
	// Merge, when set, combines data already cached with a fetched result
	// as the result is stored.
	Merge func(cached, fetched T) T
}

// Fetch returns q's data from the cache when fresh, otherwise runs q.Fn.
// Concurrent calls for one key share a single Fn call.
func Fetch[T any](ctx context.Context, c *Cache, q Query[T]) (T, error) {
	var zero T
	if q.Disabled {
		return zero, ErrDisabled
	}
	fn := q.Fn
	var merge mergeFunc
	if q.Merge != nil {
		merge = func(cached, fetched any) any {
			old, ok := cached.(T)
			next, _ := fetched.(T)
			if !ok {
				return fetched
			}
			return q.Merge(old, next)
		}
	}
	c.register(q.Key, q.StaleTime, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, merge)
	if data, ok := c.fresh(q.Key); ok {
		typed, _ := data.(T)
		return typed, nil
	}
	v, err := c.Refetch(ctx, q.Key)
	if err != nil {
		return zero, err
	}
	typed, _ := v.(T)
	return typed, nil
}

// Get returns the data cached under key regardless of staleness.
func Get[T any](c *Cache, key Key) (T, bool) {
	var zero T
	e, ok := c.Entry(key)
	if !ok || !e.HasData() {
		return zero, false
	}
	typed, ok := e.Data.(T)
	return typed, ok
}

// Update applies fn to the data under key and stores the result. ok is false
// when the key held no data of type T. The read and the write are atomic
// with respect to fetch results.
func Update[T any](c *Cache, key Key, fn func(old T, ok bool) T) {
	c.modify(key, func(data any, has bool) any {
		old, ok := data.(T)
		return fn(old, has && ok)
	})
}

// UpdateAll applies fn to every entry under prefix holding a T.
func UpdateAll[T any](c *Cache, prefix Key, fn func(key Key, old T) T) int {
	return c.UpdatePrefix(prefix, func(key Key, data any) (any, bool) {
		typed, ok := data.(T)
		if !ok {
			return nil, false
		}
		return fn(key, typed), true
	})
}
