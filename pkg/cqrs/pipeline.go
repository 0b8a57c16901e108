package cqrs

import "context"

// Next continues a dispatch with the next middleware, or the handler itself.
type Next func(ctx context.Context, msg Message) (any, error)

// Middleware intercepts a message on its way to the handler. A middleware that does
// not want to intercept returns next(ctx, msg). Errors from next must be returned
// unchanged unless the middleware documents a recovery behavior.
type Middleware interface {
	Handle(ctx context.Context, msg Message, next Next) (any, error)
}

// MiddlewareFunc is a function adapter for Middleware.
type MiddlewareFunc func(ctx context.Context, msg Message, next Next) (any, error)

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx context.Context, msg Message, next Next) (any, error) {
	return f(ctx, msg, next)
}

// Pipeline is an immutable, ordered middleware chain. The first middleware is the
// outermost: it runs first on the way in and last on the way out.
type Pipeline struct {
	middleware []Middleware
}

// NewPipeline creates a pipeline from mw in declaration order.
func NewPipeline(mw ...Middleware) Pipeline {
	list := make([]Middleware, 0, len(mw))
	for _, m := range mw {
		if m == nil {
			panic("cqrs: nil middleware")
		}
		list = append(list, m)
	}
	return Pipeline{middleware: list}
}

// Len returns the number of middleware in the pipeline.
func (p Pipeline) Len() int {
	return len(p.middleware)
}

// Then wraps terminal with every middleware and returns the composed entrypoint.
func (p Pipeline) Then(terminal Next) Next {
	next := terminal
	// Reverse order so the first declared middleware ends up outermost.
	for i := len(p.middleware) - 1; i >= 0; i-- {
		mw, inner := p.middleware[i], next
		next = func(ctx context.Context, msg Message) (any, error) {
			return mw.Handle(ctx, msg, inner)
		}
	}
	return next
}
