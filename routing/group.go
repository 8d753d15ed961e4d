// Package routing assembles route names and controller identifiers for CRUD
// resources from the active route group stack.
package routing

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// NamespaceSeparator joins a group namespace and a controller identifier.
const NamespaceSeparator = `\`

// Name is a route group name. A name given as several parts is concatenated
// without a separator. A nil Name means the group carries no name.
type Name []string

// N builds a group name from one or more parts.
func N(parts ...string) Name {
	if parts == nil {
		return Name{}
	}
	return Name(parts)
}

// String returns the concatenated name.
func (n Name) String() string {
	return strings.Join(n, "")
}

// Group describes one level of nested routing scope.
type Group struct {
	// Prefix is prepended to every route path registered inside the group.
	Prefix string

	// Name replaces the running route name prefix. Nil leaves it untouched.
	Name Name

	// Namespace qualifies controller identifiers when this is the innermost group.
	Namespace string

	// Middleware runs before the handlers of every route in the group.
	Middleware []fiber.Handler
}

// Stack is the ordered sequence of active groups, outermost first.
type Stack []Group

// Push returns a new stack with g appended. The receiver is not modified.
func (s Stack) Push(g Group) Stack {
	next := make(Stack, len(s), len(s)+1)
	copy(next, s)
	return append(next, g)
}

// NamePrefix returns the route name prefix for the stack.
//
// Each named group overwrites the prefix set by the groups before it, so
// [{Name: "admin."}, {Name: "v2."}] yields "v2." and not "admin.v2.".
func (s Stack) NamePrefix() string {
	prefix := ""
	for _, g := range s {
		if g.Name != nil {
			prefix = g.Name.String()
		}
	}
	return prefix
}

// RouteName appends the resource name to the stack's name prefix.
// No separator is inserted.
func (s Stack) RouteName(name string) string {
	return s.NamePrefix() + name
}

// Namespace returns the namespace of the innermost group, or "".
func (s Stack) Namespace() string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1].Namespace
}

// QualifyController prefixes controller with the innermost group's namespace.
func (s Stack) QualifyController(controller string) string {
	ns := s.Namespace()
	if ns == "" {
		return controller
	}
	return ns + NamespaceSeparator + controller
}

// PathPrefix joins the path prefixes of every group in the stack.
func (s Stack) PathPrefix() string {
	parts := make([]string, 0, len(s))
	for _, g := range s {
		parts = append(parts, g.Prefix)
	}
	return JoinPath(parts...)
}

// Middleware collects group middleware, outermost first.
func (s Stack) Middleware() []fiber.Handler {
	var handlers []fiber.Handler
	for _, g := range s {
		handlers = append(handlers, g.Middleware...)
	}
	return handlers
}

// JoinPath joins URL path segments with single slashes. The result always
// starts with "/" and never ends with one unless it is the root.
func JoinPath(parts ...string) string {
	var segments []string
	for _, p := range parts {
		for _, seg := range strings.Split(p, "/") {
			if seg != "" {
				segments = append(segments, seg)
			}
		}
	}
	return "/" + strings.Join(segments, "/")
}
