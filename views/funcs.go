package views

import (
	"fmt"
	"html/template"
	"strings"
)

// Helpers backs the template functions available in every view.
type Helpers struct {
	// RoutePrefix is the admin path prefix, e.g. "/admin".
	RoutePrefix string

	// Guard is the admin auth guard name.
	Guard string

	// Translate resolves translation keys.
	Translate func(key string, replace map[string]string) string

	// RoutePath returns the path pattern of a named route.
	RoutePath func(name string) (string, bool)
}

// UserKey is the binding key holding the authenticated user.
const UserKey = "backpack_user"

// FuncMap returns backpack_url, backpack_view, backpack_route, trans,
// backpack_user and backpack_auth_guard.
func (h Helpers) FuncMap() template.FuncMap {
	return template.FuncMap{
		"backpack_url": func(path ...string) string {
			return URL(h.RoutePrefix, strings.Join(path, "/"))
		},
		"backpack_view": func(view string) string {
			return NamespaceBase + Delimiter + view
		},
		"backpack_route": func(name string, params ...any) (string, error) {
			if h.RoutePath == nil {
				return "", fmt.Errorf("views: no route lookup configured")
			}
			pattern, ok := h.RoutePath(name)
			if !ok {
				return "", fmt.Errorf("views: route %q not defined", name)
			}
			return FillRoute(pattern, params...), nil
		},
		"trans": func(key string, pairs ...any) string {
			if h.Translate == nil {
				return key
			}
			return h.Translate(key, pairsToMap(pairs))
		},
		"backpack_user": func(data map[string]any) any {
			return data[UserKey]
		},
		"backpack_auth_guard": func() string {
			return h.Guard
		},
	}
}

// URL joins prefix and path with exactly one slash between them.
func URL(prefix, path string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	path = strings.Trim(path, "/")
	if path == "" {
		return prefix
	}
	if prefix == "/" {
		return prefix + path
	}
	return prefix + "/" + path
}

// FillRoute replaces the :params of a fiber route pattern in order.
// Missing params leave the placeholder in place.
func FillRoute(pattern string, params ...any) string {
	segments := strings.Split(pattern, "/")
	i := 0
	for j, seg := range segments {
		if strings.HasPrefix(seg, ":") && i < len(params) {
			segments[j] = fmt.Sprint(params[i])
			i++
		}
	}
	return strings.Join(segments, "/")
}

func pairsToMap(pairs []any) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[fmt.Sprint(pairs[i])] = fmt.Sprint(pairs[i+1])
	}
	return m
}
