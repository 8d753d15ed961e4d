package routing

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrControllerNotFound is returned when no factory is registered for an identifier.
	ErrControllerNotFound = errors.New("routing: controller not found")

	// ErrDuplicateController is returned when an identifier is registered twice.
	ErrDuplicateController = errors.New("routing: controller already registered")
)

// Route is a registered, named route.
type Route struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Name   string `json:"name"`
}

// Registrar registers routes relative to the active group stack.
type Registrar interface {
	// Add registers handlers for method and path and names the route.
	Add(method, path, name string, handlers ...fiber.Handler) Route

	// PathPrefix returns the joined path prefix of the active groups.
	PathPrefix() string
}

// Controller sets up the routes of one CRUD resource.
//
// name is the resource segment ("users"), routeName the fully assembled route
// name prefix ("admin.users") and controller the identifier as passed by the
// caller, before namespace qualification.
type Controller interface {
	SetupRoutes(r Registrar, name, routeName, controller string) ([]Route, error)
}

// Factory builds a controller instance.
type Factory func() (Controller, error)

// Registry maps controller identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id, which should be namespace-qualified when
// the controller is mounted inside a namespaced group.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" || factory == nil {
		return fmt.Errorf("routing: register %q: empty identifier or nil factory", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateController, id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Make builds the controller registered under id.
func (r *Registry) Make(id string) (Controller, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrControllerNotFound, id)
	}

	controller, err := factory()
	if err != nil {
		return nil, fmt.Errorf("routing: make %s: %w", id, err)
	}
	return controller, nil
}

// Identifiers returns the registered identifiers in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolution is the outcome of resolving a CRUD mount against a group stack.
type Resolution struct {
	Name       string
	RouteName  string
	Controller string
	Qualified  string
}

// Resolve computes the route name and qualified controller identifier for
// mounting resource name with controller inside stack.
func Resolve(stack Stack, name, controller string) Resolution {
	return Resolution{
		Name:       name,
		RouteName:  stack.RouteName(name),
		Controller: controller,
		Qualified:  stack.QualifyController(controller),
	}
}

// Mount resolves the controller through the registry and lets it register
// its routes on r.
func Mount(r Registrar, registry *Registry, stack Stack, name, controller string) ([]Route, error) {
	res := Resolve(stack, name, controller)

	instance, err := registry.Make(res.Qualified)
	if err != nil {
		return nil, err
	}

	routes, err := instance.SetupRoutes(r, res.Name, res.RouteName, res.Controller)
	if err != nil {
		return nil, fmt.Errorf("routing: setup routes for %s: %w", res.Qualified, err)
	}
	return routes, nil
}
