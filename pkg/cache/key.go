// Package cache provides tag-aware result caches used by the query cache middleware,
// plus helpers to derive deterministic cache keys from query fields.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Key builds a namespaced cache key from the fields that affect a query result.
// Fields are serialized to canonical JSON (map keys sorted at every level) and hashed
// with SHA-256, so identical values always yield the same key regardless of map
// iteration order.
func Key(prefix string, fields map[string]any) (string, error) {
	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("serialize cache key fields: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return prefix + hex.EncodeToString(sum[:]), nil
}

// MustKey is like Key but panics when the fields cannot be serialized. Query types
// use it from CacheKey, where the field set is fixed at compile time.
func MustKey(prefix string, fields map[string]any) string {
	key, err := Key(prefix, fields)
	if err != nil {
		panic(err)
	}
	return key
}
