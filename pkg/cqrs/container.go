package cqrs

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Locator looks up handler services by type name. The buses never register or
// enumerate handlers, they only ask for the name derived from the convention.
type Locator interface {
	Has(name string) bool
	Get(name string) (any, error)
}

// TypeCatalog is optionally implemented by a Locator that knows which handler types
// exist in the program, registered or not.
type TypeCatalog interface {
	Exists(name string) bool
}

// Container is a startup registry of handler services keyed by their type name.
// It implements Locator and TypeCatalog.
type Container struct {
	mu        sync.RWMutex
	declared  map[string]struct{}
	factories map[string]func() (any, error)
	instances map[string]any
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{
		declared:  make(map[string]struct{}),
		factories: make(map[string]func() (any, error)),
		instances: make(map[string]any),
	}
}

// Provide registers handler instances under their own type names.
// It panics on a nil handler or on a duplicate registration, like a wiring error would.
func (c *Container) Provide(handlers ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range handlers {
		if h == nil {
			panic("cqrs: nil handler provided")
		}
		name := TypeName(h)
		c.mustBeNew(name)
		c.declared[name] = struct{}{}
		c.instances[name] = h
	}
}

// ProvideFactory registers a handler whose instance is built on first Get.
func ProvideFactory[H any](c *Container, factory func() (H, error)) {
	name := typeName(reflect.TypeOf((*H)(nil)).Elem())

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mustBeNew(name)
	c.declared[name] = struct{}{}
	c.factories[name] = func() (any, error) {
		return factory()
	}
}

// Declare records handler types that exist without making them available as services.
func (c *Container) Declare(prototypes ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range prototypes {
		c.declared[TypeName(p)] = struct{}{}
	}
}

func (c *Container) mustBeNew(name string) {
	_, hasInstance := c.instances[name]
	_, hasFactory := c.factories[name]
	if hasInstance || hasFactory {
		panic(fmt.Sprintf("cqrs: handler already registered: %s", name))
	}
}

// Exists implements TypeCatalog.
func (c *Container) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.declared[name]
	return ok
}

// Has implements Locator.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.instances[name]; ok {
		return true
	}
	_, ok := c.factories[name]
	return ok
}

// Get implements Locator. Factory-built instances are created once and reused.
func (c *Container) Get(name string) (any, error) {
	c.mu.RLock()
	h, ok := c.instances[name]
	c.mu.RUnlock()
	if ok {
		return h, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.instances[name]; ok {
		return h, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("no service registered under %s", name)
	}
	h, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	if h == nil {
		return nil, fmt.Errorf("build %s: factory returned nil", name)
	}
	c.instances[name] = h
	delete(c.factories, name)
	return h, nil
}

// Names returns the registered service names, sorted.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.instances)+len(c.factories))
	for name := range c.instances {
		names = append(names, name)
	}
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
