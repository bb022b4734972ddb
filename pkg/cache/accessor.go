package cache

import (
	"context"
	"time"

	"github.com/voiceops/multicache/pkg/cachekey"
)

// Lookup is typed sugar over GetOrLoad: it returns the value instead of
// filling a destination, with the loader typed to match.
func Lookup[T any](ctx context.Context, c *Cache, key cachekey.Key, ttl time.Duration, loader func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.GetOrLoad(ctx, key, ttl, &out, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	return out, err
}

// KeyFunc derives the cache key for an argument. Used when the default
// argument-rendered key is not specific enough.
type KeyFunc[A any] func(arg A) cachekey.Key

// CachedFunc wraps fn so every call is served through the cache. The
// key is derived from the argument; a ttl of 0 selects the namespace
// default. The returned function has the same shape as fn, so call
// sites swap it in without other changes.
func CachedFunc[A, R any](c *Cache, namespace string, ttl time.Duration, fn func(ctx context.Context, arg A) (R, error)) func(ctx context.Context, arg A) (R, error) {
	return CachedFuncKeyed(c, ttl, func(arg A) cachekey.Key {
		return cachekey.New(namespace, arg)
	}, fn)
}

// CachedFuncKeyed is CachedFunc with an explicit key derivation.
func CachedFuncKeyed[A, R any](c *Cache, ttl time.Duration, key KeyFunc[A], fn func(ctx context.Context, arg A) (R, error)) func(ctx context.Context, arg A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		var out R
		err := c.GetOrLoad(ctx, key(arg), ttl, &out, func(ctx context.Context) (any, error) {
			return fn(ctx, arg)
		})
		return out, err
	}
}
