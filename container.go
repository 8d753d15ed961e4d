package backpack

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Container binding names registered by the provider.
const (
	BindingCrud    = "crud"
	BindingWidgets = "widgets"
)

var (
	// ErrNotBound is returned when resolving a name with no binding.
	ErrNotBound = errors.New("backpack: binding not found")

	// ErrBindingType is returned by Resolve when the bound value has
	// another type.
	ErrBindingType = errors.New("backpack: binding has unexpected type")
)

// FactoryFunc builds a bound value. It receives the container so it can
// resolve its own dependencies.
type FactoryFunc func(c *Container) (any, error)

type binding struct {
	factory  FactoryFunc
	shared   bool
	once     sync.Once
	instance any
	err      error
}

// Container is a small service container. Shared bindings are built once,
// on first use, and the same instance is returned afterwards. It is safe
// for concurrent use.
type Container struct {
	mu       sync.RWMutex
	bindings map[string]*binding
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{bindings: make(map[string]*binding)}
}

// Singleton binds a shared factory under name, replacing any previous
// binding.
func (c *Container) Singleton(name string, factory FactoryFunc) {
	c.set(name, &binding{factory: factory, shared: true})
}

// Bind binds a factory that builds a new value on every Make.
func (c *Container) Bind(name string, factory FactoryFunc) {
	c.set(name, &binding{factory: factory})
}

// Instance binds an existing value.
func (c *Container) Instance(name string, value any) {
	b := &binding{shared: true, instance: value}
	b.once.Do(func() {})
	c.set(name, b)
}

func (c *Container) set(name string, b *binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[name] = b
}

// Bound reports whether name has a binding.
func (c *Container) Bound(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bindings[name]
	return ok
}

// Names lists the bound names, sorted.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.bindings))
	for name := range c.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Make resolves name.
func (c *Container) Make(name string) (any, error) {
	c.mu.RLock()
	b, ok := c.bindings[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, name)
	}

	if !b.shared {
		v, err := b.factory(c)
		if err != nil {
			return nil, fmt.Errorf("backpack: make %s: %w", name, err)
		}
		return v, nil
	}

	b.once.Do(func() {
		b.instance, b.err = b.factory(c)
	})
	if b.err != nil {
		return nil, fmt.Errorf("backpack: make %s: %w", name, b.err)
	}
	return b.instance, nil
}

// Resolve makes name and asserts it to T.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	v, err := c.Make(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T", ErrBindingType, name, v)
	}
	return t, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](c *Container, name string) T {
	t, err := Resolve[T](c, name)
	if err != nil {
		panic(err)
	}
	return t
}
