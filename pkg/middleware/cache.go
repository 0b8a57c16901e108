package middleware

import (
	"context"

	"github.com/plaenen/shopcore/pkg/cqrs"
)

// QueryCache serves Cacheable messages through c. Other messages pass straight
// through without touching the cache. Hit, miss, expiry and tag invalidation are the
// cache's concern; a failed computation is returned unchanged and nothing is stored.
func QueryCache(c Cache) cqrs.Middleware {
	if c == nil {
		panic("middleware: nil cache")
	}

	return cqrs.MiddlewareFunc(func(ctx context.Context, msg cqrs.Message, next cqrs.Next) (any, error) {
		cacheable, ok := msg.(cqrs.Cacheable)
		if !ok {
			return next(ctx, msg)
		}

		return c.Get(ctx, cacheable.CacheKey(), cacheable.CacheTTL(), cacheable.CacheTags(), func(ctx context.Context) (any, error) {
			return next(ctx, msg)
		})
	})
}
