package cqrs

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Option configures a bus.
type Option func(*busConfig)

type busConfig struct {
	middleware []Middleware
}

// WithMiddleware appends middleware to the bus pipeline, in execution order.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *busConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// bus is the machinery shared by CommandBus and QueryBus. The pipeline is fixed at
// construction; composed entrypoints are memoized per message type.
type bus struct {
	resolver *Resolver
	pipeline Pipeline

	mu       sync.RWMutex
	composed map[reflect.Type]Next
}

func newBus(resolver *Resolver, opts []Option) *bus {
	var cfg busConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &bus{
		resolver: resolver,
		pipeline: NewPipeline(cfg.middleware...),
		composed: make(map[reflect.Type]Next),
	}
}

func (b *bus) dispatch(ctx context.Context, msg Message) (any, error) {
	if msg == nil {
		return nil, newResolutionError(b.resolver.Kind(), "<nil>", "", ErrNilMessage, "")
	}
	msgType := reflect.TypeOf(msg)

	b.mu.RLock()
	entry, ok := b.composed[msgType]
	b.mu.RUnlock()

	if !ok {
		target, err := b.resolver.Resolve(msg)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		if entry, ok = b.composed[msgType]; !ok {
			entry = b.pipeline.Then(Next(target))
			b.composed[msgType] = entry
		}
		b.mu.Unlock()
	}

	return entry(ctx, msg)
}

func (b *bus) preload(prototypes []Message) error {
	return b.resolver.Preload(prototypes...)
}

// CommandBus dispatches commands to their CommandHandler.
type CommandBus struct {
	*bus
}

// NewCommandBus creates a command bus resolving handlers from locator.
func NewCommandBus(locator Locator, opts ...Option) *CommandBus {
	return &CommandBus{bus: newBus(NewCommandResolver(locator), opts)}
}

// Dispatch sends cmd through the middleware pipeline to its handler and returns the
// handler's result or error unchanged.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Message) (any, error) {
	return b.dispatch(ctx, cmd)
}

// Preload resolves the handlers of the given command prototypes eagerly.
func (b *CommandBus) Preload(prototypes ...Message) error {
	return b.preload(prototypes)
}

// Handlers returns the command types resolved so far (for debugging).
func (b *CommandBus) Handlers() []string {
	return b.resolver.Resolved()
}

// QueryBus dispatches queries to their QueryHandler.
type QueryBus struct {
	*bus
}

// NewQueryBus creates a query bus resolving handlers from locator.
func NewQueryBus(locator Locator, opts ...Option) *QueryBus {
	return &QueryBus{bus: newBus(NewQueryResolver(locator), opts)}
}

// Dispatch sends query through the middleware pipeline to its handler.
func (b *QueryBus) Dispatch(ctx context.Context, query Message) (any, error) {
	return b.dispatch(ctx, query)
}

// Preload resolves the handlers of the given query prototypes eagerly.
func (b *QueryBus) Preload(prototypes ...Message) error {
	return b.preload(prototypes)
}

// Handlers returns the query types resolved so far (for debugging).
func (b *QueryBus) Handlers() []string {
	return b.resolver.Resolved()
}

// DispatchAs dispatches msg and asserts the result to R. A nil result yields the zero R.
func DispatchAs[R any](ctx context.Context, d Dispatcher, msg Message) (R, error) {
	var zero R
	result, err := d.Dispatch(ctx, msg)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrUnexpectedResult, TypeName(msg), result, zero)
	}
	return typed, nil
}
