package cqrs

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Target is a resolved dispatch target: a message type bound to its handler.
type Target func(ctx context.Context, msg Message) (any, error)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Resolver maps messages of one kind to their handlers by naming convention and
// memoizes the resulting targets per exact message type. Entries are never evicted.
type Resolver struct {
	kind    Kind
	locator Locator

	mu      sync.RWMutex
	targets map[reflect.Type]Target
}

// NewCommandResolver creates a resolver for *Command messages.
func NewCommandResolver(locator Locator) *Resolver {
	return newResolver(KindCommand, locator)
}

// NewQueryResolver creates a resolver for *Query messages.
func NewQueryResolver(locator Locator) *Resolver {
	return newResolver(KindQuery, locator)
}

func newResolver(kind Kind, locator Locator) *Resolver {
	if locator == nil {
		panic("cqrs: resolver requires a locator")
	}
	return &Resolver{
		kind:    kind,
		locator: locator,
		targets: make(map[reflect.Type]Target),
	}
}

// Kind returns the message kind this resolver serves.
func (r *Resolver) Kind() Kind {
	return r.kind
}

// Resolve returns the dispatch target for msg, resolving and caching it on first use.
func (r *Resolver) Resolve(msg Message) (Target, error) {
	if msg == nil {
		return nil, newResolutionError(r.kind, "<nil>", "", ErrNilMessage, "")
	}
	msgType := reflect.TypeOf(msg)

	r.mu.RLock()
	target, ok := r.targets[msgType]
	r.mu.RUnlock()
	if ok {
		return target, nil
	}

	target, err := r.resolve(msgType)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the race; keep the first target so every
	// caller observes the same handler instance.
	if existing, ok := r.targets[msgType]; ok {
		return existing, nil
	}
	r.targets[msgType] = target
	return target, nil
}

func (r *Resolver) resolve(msgType reflect.Type) (Target, error) {
	messageName := typeName(msgType)

	handlerName, ok := HandlerName(r.kind, messageName)
	if !ok {
		return nil, newResolutionError(r.kind, messageName, "", ErrNamingConvention,
			fmt.Sprintf("%s type names must end with %q", r.kind, r.kind.Suffix()))
	}

	if catalog, ok := r.locator.(TypeCatalog); ok && !catalog.Exists(handlerName) {
		return nil, newResolutionError(r.kind, messageName, handlerName, ErrHandlerTypeNotFound, conventionDetail(r.kind))
	}

	if !r.locator.Has(handlerName) {
		return nil, newResolutionError(r.kind, messageName, handlerName, ErrHandlerNotRegistered,
			"register an instance with the handler locator")
	}

	handler, err := r.locator.Get(handlerName)
	if err != nil {
		return nil, newResolutionError(r.kind, messageName, handlerName, ErrHandlerNotRegistered, err.Error())
	}

	method, err := handleMethod(handler, msgType)
	if err != nil {
		return nil, newResolutionError(r.kind, messageName, handlerName, ErrHandlerNotCallable, err.Error())
	}

	kind := r.kind
	return func(ctx context.Context, msg Message) (any, error) {
		if msg == nil || reflect.TypeOf(msg) != msgType {
			return nil, newResolutionError(kind, messageName, handlerName, ErrUnexpectedMessage,
				fmt.Sprintf("got %T", msg))
		}
		return invoke(method, ctx, msg)
	}, nil
}

// handleMethod finds handler.Handle and checks it accepts (context.Context, msgType)
// and returns either (R, error) or error.
func handleMethod(handler any, msgType reflect.Type) (reflect.Value, error) {
	method := reflect.ValueOf(handler).MethodByName("Handle")
	if !method.IsValid() {
		return reflect.Value{}, fmt.Errorf("%T has no Handle method", handler)
	}

	sig := method.Type()
	if sig.NumIn() != 2 || sig.In(0) != contextType {
		return reflect.Value{}, fmt.Errorf("%T.Handle must accept (context.Context, %s)", handler, msgType)
	}
	if !msgType.AssignableTo(sig.In(1)) {
		return reflect.Value{}, fmt.Errorf("%T.Handle accepts %s, not %s", handler, sig.In(1), msgType)
	}

	switch {
	case sig.NumOut() == 1 && sig.Out(0) == errorType:
	case sig.NumOut() == 2 && sig.Out(1) == errorType:
	default:
		return reflect.Value{}, fmt.Errorf("%T.Handle must return (R, error) or error", handler)
	}
	return method, nil
}

func invoke(method reflect.Value, ctx context.Context, msg Message) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	out := method.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(msg)})

	errValue := out[len(out)-1]
	var err error
	if !errValue.IsNil() {
		err = errValue.Interface().(error)
	}
	if len(out) == 1 {
		return nil, err
	}
	return out[0].Interface(), err
}

// Preload resolves prototypes eagerly so that wiring defects surface at startup.
// All failures are returned joined.
func (r *Resolver) Preload(prototypes ...Message) error {
	var errs []error
	for _, p := range prototypes {
		if _, err := r.Resolve(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resolved returns the names of message types with a cached target, sorted.
func (r *Resolver) Resolved() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.targets))
	for t := range r.targets {
		names = append(names, typeName(t))
	}
	sort.Strings(names)
	return names
}
