// Package cqrs provides the in-process command and query buses: convention based
// handler resolution, memoized dispatch targets and middleware pipelines.
package cqrs

import (
	"context"
	"reflect"
	"strings"
	"time"
)

// Message is a command or a query. Its concrete type identifies the handler that
// serves it; a message carries data only.
type Message = any

// Kind distinguishes the two message families. Each kind fixes the type name suffix
// a message must carry and the suffix of its handler.
type Kind string

const (
	// KindCommand is the kind of state-changing messages.
	KindCommand Kind = "command"

	// KindQuery is the kind of read requests.
	KindQuery Kind = "query"
)

// Suffix returns the type name suffix messages of this kind must end with.
func (k Kind) Suffix() string {
	switch k {
	case KindCommand:
		return "Command"
	case KindQuery:
		return "Query"
	}
	return ""
}

// HandlerSuffix returns the suffix that replaces Suffix in the handler type name.
func (k Kind) HandlerSuffix() string {
	return k.Suffix() + "Handler"
}

// Cacheable is implemented by queries whose results may be served from a cache.
// All three methods must be pure functions of the query's fields.
type Cacheable interface {
	// CacheKey returns a stable fingerprint of every field that affects the result.
	CacheKey() string

	// CacheTTL returns how long a computed result stays valid.
	CacheTTL() time.Duration

	// CacheTags returns the invalidation tags the result is stored under.
	CacheTags() []string
}

// Dispatcher is the single entrypoint shared by CommandBus and QueryBus.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) (any, error)
}

// TypeName returns the package-qualified name of v's concrete type, dereferencing
// pointers: "github.com/acme/catalog.CreateCategoryCommand".
func TypeName(v any) string {
	if v == nil {
		return ""
	}
	return typeName(reflect.TypeOf(v))
}

// ShortTypeName returns the unqualified type name of v, dereferencing pointers.
func ShortTypeName(v any) string {
	name := TypeName(v)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// HandlerName derives the handler type name for a message type name according to the
// naming convention of kind. ok is false when messageName lacks the kind's suffix.
func HandlerName(kind Kind, messageName string) (name string, ok bool) {
	suffix := kind.Suffix()
	short := messageName
	if i := strings.LastIndex(messageName, "."); i >= 0 {
		short = messageName[i+1:]
	}
	// A bare "Command" or "Query" has no subject and does not follow the convention.
	if suffix == "" || len(short) <= len(suffix) || !strings.HasSuffix(short, suffix) {
		return "", false
	}
	return strings.TrimSuffix(messageName, suffix) + kind.HandlerSuffix(), true
}

// KindOf classifies a message by its type name suffix. ok is false when the name
// follows neither convention.
func KindOf(msg Message) (kind Kind, ok bool) {
	name := TypeName(msg)
	for _, k := range []Kind{KindCommand, KindQuery} {
		if _, ok := HandlerName(k, name); ok {
			return k, true
		}
	}
	return "", false
}
