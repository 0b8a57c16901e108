// Package idgen generates identifiers: lexicographically sortable ULIDs for catalog
// entities and random UUIDs for users, orders and tokens.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// MustGenerateSortableID returns a new ULID. IDs generated within the same
// millisecond still sort in creation order.
func MustGenerateSortableID() string {
	return NewSortableID(time.Now()).String()
}

// NewSortableID returns a ULID carrying t's timestamp.
func NewSortableID(t time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy)
}

// ParseSortableID parses a ULID string.
func ParseSortableID(s string) (ulid.ULID, error) {
	return ulid.ParseStrict(s)
}

// NewUUID returns a random (version 4) UUID string.
func NewUUID() string {
	return uuid.NewString()
}

// ValidUUID reports whether s parses as a UUID.
func ValidUUID(s string) bool {
	return uuid.Validate(s) == nil
}
