// Package inertia renders CRUD pages as Inertia.js responses for panels
// that ship a JavaScript front end instead of the stock HTML views.
package inertia

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	inertiapkg "github.com/petaki/inertia-go"

	"github.com/karloscodes/backpack/pkg/flash"
)

//go:embed stock
var stockFS embed.FS

// Protocol headers.
const (
	HeaderInertia          = "X-Inertia"
	HeaderVersion          = "X-Inertia-Version"
	HeaderLocation         = "X-Inertia-Location"
	HeaderPartialData      = "X-Inertia-Partial-Data"
	HeaderPartialComponent = "X-Inertia-Partial-Component"
)

// Props is the prop bag handed to a page component.
type Props = map[string]interface{}

// DeferredProp is evaluated only when a partial reload asks for it.
type DeferredProp struct {
	Callback func() interface{}
	Group    string
}

// Defer creates a deferred prop that loads after the first render.
func Defer(callback func() interface{}) DeferredProp {
	return DeferredProp{Callback: callback}
}

// DeferGroup creates a deferred prop fetched together with its group.
func DeferGroup(callback func() interface{}, group string) DeferredProp {
	return DeferredProp{Callback: callback, Group: group}
}

// Options configures a Responder.
type Options struct {
	// URL is the public base URL of the application.
	URL string
	// Version changes whenever the front-end bundle changes.
	Version string
	// Title is the document title of the root page.
	Title string
	// RootTemplate overrides the stock root page. It is looked up in FS.
	RootTemplate string
	FS           fs.FS
	Assets       *Assets
}

// Responder renders Inertia pages.
type Responder struct {
	engine  *inertiapkg.Inertia
	version string
}

// New creates a Responder.
func New(opts Options) *Responder {
	if opts.Version == "" {
		opts.Version = "1"
	}
	if opts.Assets == nil {
		opts.Assets = NewAssets("", "", "/assets", false)
	}

	var engine *inertiapkg.Inertia
	if opts.FS != nil && opts.RootTemplate != "" {
		engine = inertiapkg.NewWithFS(opts.URL, opts.RootTemplate, opts.Version, opts.FS)
	} else {
		engine = inertiapkg.NewWithFS(opts.URL, "stock/root.html", opts.Version, stockFS)
	}

	title := opts.Title
	assets := opts.Assets
	engine.ShareFunc("inertia_title", func() string { return title })
	engine.ShareFunc("inertia_js", assets.JS)
	engine.ShareFunc("inertia_css", assets.CSS)

	return &Responder{engine: engine, version: opts.Version}
}

// Version returns the asset version sent to clients.
func (r *Responder) Version() string {
	return r.version
}

// Share adds a prop to every page.
func (r *Responder) Share(key string, value interface{}) {
	r.engine.Share(key, value)
}

// IsInertia reports whether c was issued by the Inertia client.
func IsInertia(c *fiber.Ctx) bool {
	return c.Get(HeaderInertia) != ""
}

// Render sends component with props. Inertia navigations get JSON with
// deferred props held back and listed under deferredProps. A full page
// load evaluates deferred props inline since no client is running yet.
func (r *Responder) Render(c *fiber.Ctx, component string, props Props) error {
	if props == nil {
		props = Props{}
	}
	if _, exists := props["flash"]; !exists {
		if msg, ok := flash.Get(c); ok {
			props["flash"] = msg
		} else {
			props["flash"] = nil
		}
	}

	if IsInertia(c) {
		return r.renderJSON(c, component, props)
	}

	resolved := resolveProps(props, "", "", component)
	var renderErr error
	handler := adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		renderErr = r.engine.Render(w, req, component, resolved)
	})
	if err := handler(c); err != nil {
		return err
	}
	return renderErr
}

func (r *Responder) renderJSON(c *fiber.Ctx, component string, props Props) error {
	c.Set(HeaderInertia, "true")
	c.Set(fiber.HeaderVary, HeaderInertia)

	page := fiber.Map{
		"component": component,
		"url":       c.OriginalURL(),
		"version":   r.version,
	}

	partialData := c.Get(HeaderPartialData)
	partialComponent := c.Get(HeaderPartialComponent)
	if partialData != "" && (partialComponent == "" || partialComponent == component) {
		page["props"] = resolveProps(props, partialData, partialComponent, component)
		return c.JSON(page)
	}

	resolved, deferred := resolvePropsForInitialLoad(props)
	page["props"] = resolved
	if len(deferred) > 0 {
		page["deferredProps"] = deferred
	}
	return c.JSON(page)
}

// Middleware enforces asset versioning and the 303 redirect rule for
// Inertia requests.
func (r *Responder) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !IsInertia(c) {
			return c.Next()
		}

		if c.Method() == fiber.MethodGet && c.Get(HeaderVersion) != r.version {
			c.Set(HeaderLocation, c.BaseURL()+c.OriginalURL())
			return c.SendStatus(fiber.StatusConflict)
		}

		if err := c.Next(); err != nil {
			return err
		}

		switch c.Method() {
		case fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
			if c.Response().StatusCode() == fiber.StatusFound {
				c.Status(fiber.StatusSeeOther)
			}
		}
		return nil
	}
}

// Location forces a full page visit to url.
func Location(c *fiber.Ctx, url string) error {
	if IsInertia(c) {
		c.Set(HeaderLocation, url)
		return c.SendStatus(fiber.StatusConflict)
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// resolveProps evaluates deferred props. For a partial reload of
// component only the requested keys are returned.
func resolveProps(props Props, partialData, partialComponent, component string) Props {
	if partialData == "" || (partialComponent != "" && partialComponent != component) {
		resolved := make(Props, len(props))
		for key, value := range props {
			if deferred, ok := value.(DeferredProp); ok {
				resolved[key] = deferred.Callback()
			} else {
				resolved[key] = value
			}
		}
		return resolved
	}

	requested := make(map[string]bool)
	for _, prop := range strings.Split(partialData, ",") {
		requested[strings.TrimSpace(prop)] = true
	}

	resolved := make(Props)
	for key, value := range props {
		if !requested[key] {
			continue
		}
		if deferred, ok := value.(DeferredProp); ok {
			resolved[key] = deferred.Callback()
		} else {
			resolved[key] = value
		}
	}
	return resolved
}

// resolvePropsForInitialLoad drops deferred props and groups their keys.
func resolvePropsForInitialLoad(props Props) (Props, map[string][]string) {
	resolved := make(Props)
	deferred := make(map[string][]string)

	for key, value := range props {
		if d, ok := value.(DeferredProp); ok {
			group := d.Group
			if group == "" {
				group = "default"
			}
			deferred[group] = append(deferred[group], key)
		} else {
			resolved[key] = value
		}
	}
	return resolved, deferred
}
