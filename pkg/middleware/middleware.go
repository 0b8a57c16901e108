// Package middleware provides the dispatch interceptors used by the command and query
// buses: logging, query result caching, panic recovery, tracing, metrics and
// validation.
package middleware

import (
	"math"
	"time"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cqrs"
)

// Cache is the port the query cache middleware reads through. Write-side handlers
// use InvalidateTags after a successful mutation.
type Cache interface {
	cache.TagAware
}

func kindOf(msg cqrs.Message) string {
	kind, ok := cqrs.KindOf(msg)
	if !ok {
		return "unknown"
	}
	return string(kind)
}

// milliseconds returns d in milliseconds rounded to two decimals.
func milliseconds(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*100) / 100
}
