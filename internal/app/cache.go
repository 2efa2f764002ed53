package app

import (
	"context"
	"sync"
)

type cacheCtxKey struct{}

// RequestCache memoizes data fetches within one request, so a user record
// needed by both the page loader and the navigation loader is fetched once.
// It lives on the request context and is discarded with it; it is never
// shared across requests.
type RequestCache struct {
	cache sync.Map
}

// NewRequestCache creates an empty per-request cache.
func NewRequestCache() *RequestCache {
	return &RequestCache{}
}

// ContextWithCache stores the cache in the context.
func ContextWithCache(ctx context.Context, rc *RequestCache) context.Context {
	return context.WithValue(ctx, cacheCtxKey{}, rc)
}

// CacheFromContext extracts the cache, nil if not present.
func CacheFromContext(ctx context.Context) *RequestCache {
	if ctx == nil {
		return nil
	}
	if rc, ok := ctx.Value(cacheCtxKey{}).(*RequestCache); ok {
		return rc
	}
	return nil
}

// GetOrFetch returns the cached value for key or executes fetchFn and caches
// the result. Errors are not cached; a failed fetch is retried by the next
// caller. Safe for concurrent use; on a race the first stored value wins.
func (rc *RequestCache) GetOrFetch(ctx context.Context, key string, fetchFn func(ctx context.Context) (any, error)) (any, error) {
	if cached, ok := rc.cache.Load(key); ok {
		return cached, nil
	}

	value, err := fetchFn(ctx)
	if err != nil {
		return nil, err
	}

	actual, _ := rc.cache.LoadOrStore(key, value)
	return actual, nil
}
