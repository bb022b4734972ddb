// Package cache composes the in-process L1 tier and the Redis-backed L2
// tier into one logical cache with read-through, write-through,
// promotion and invalidation fan-out.
//
// The read path is L1, then L2 through the circuit breaker, then the
// caller-supplied loader. Values found in L2 are promoted into L1;
// values computed by the loader are written back to L2 and, when that
// write succeeds, into L1. Concurrent misses for the same key share one
// loader invocation.
//
// # Basic Usage
//
//	cfg := config.Default()
//	engine, err := cache.New(cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	key := cachekey.Business("+15551234567")
//	var biz Business
//	err = engine.GetOrLoad(ctx, key, 0, &biz, func(ctx context.Context) (any, error) {
//		return lookupBusiness(ctx, "+15551234567")
//	})
//
// # Cached Accessors
//
// CachedFunc wraps a loader and a key strategy into a plain function so
// call sites never touch cache keys:
//
//	lookup := cache.CachedFunc(engine, cachekey.NamespaceBusiness, 0, lookupBusiness)
//	biz, err := lookup(ctx, "+15551234567")
//
// # Failure semantics
//
// Remote-tier failures never propagate: a breaker-open rejection or an
// unreachable cluster degrades to "go to the loader". Only loader
// failures are returned to the caller. Corrupt stored payloads count as
// misses; reloading is safer than serving them.
package cache
