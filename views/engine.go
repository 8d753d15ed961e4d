package views

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
)

// ContentKey is the binding key under which a layout receives the rendered view.
const ContentKey = "Content"

// Engine implements fiber.Views over a Finder. Each hint gets its own
// html engine; layouts may live in a different namespace than the view.
type Engine struct {
	finder *Finder
	funcs  template.FuncMap
	reload bool

	mu      sync.Mutex
	engines map[string]*html.Engine
}

// NewEngine creates an engine resolving names through finder.
func NewEngine(finder *Finder) *Engine {
	return &Engine{
		finder:  finder,
		funcs:   template.FuncMap{},
		engines: make(map[string]*html.Engine),
	}
}

// Finder returns the underlying finder.
func (e *Engine) Finder() *Finder { return e.finder }

// AddFunc registers a template function. Call before Load.
func (e *Engine) AddFunc(name string, fn any) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
	return e
}

// AddFuncMap registers several template functions. Call before Load.
func (e *Engine) AddFuncMap(m template.FuncMap) *Engine {
	for name, fn := range m {
		e.AddFunc(name, fn)
	}
	return e
}

// Reload re-parses templates on every render. Use in development.
func (e *Engine) Reload(enabled bool) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reload = enabled
	return e
}

// Load parses the templates of every registered hint.
func (e *Engine) Load() error {
	for _, ns := range e.finder.Namespaces() {
		for _, hint := range e.finder.Hints(ns) {
			if _, err := e.engineFor(hint); err != nil {
				return err
			}
		}
	}
	return nil
}

// Render renders name into out. With a layout, the view is rendered first
// and passed to the layout as .Content together with the original binding.
func (e *Engine) Render(out io.Writer, name string, binding interface{}, layouts ...string) error {
	hint, tmpl, err := e.finder.Find(name)
	if err != nil {
		return err
	}
	engine, err := e.engineFor(hint)
	if err != nil {
		return err
	}

	layout := ""
	if len(layouts) > 0 {
		layout = layouts[0]
	}
	if layout == "" {
		return engine.Render(out, tmpl, binding)
	}

	var content bytes.Buffer
	if err := engine.Render(&content, tmpl, binding); err != nil {
		return err
	}

	layoutHint, layoutTmpl, err := e.finder.Find(layout)
	if err != nil {
		return err
	}
	layoutEngine, err := e.engineFor(layoutHint)
	if err != nil {
		return err
	}

	data := toMap(binding)
	data[ContentKey] = template.HTML(content.String())
	return layoutEngine.Render(out, layoutTmpl, data)
}

func (e *Engine) engineFor(hint Hint) (*html.Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if engine, ok := e.engines[hint.Label]; ok {
		return engine, nil
	}

	engine := html.NewFileSystem(http.FS(hint.FS), Extension)
	engine.AddFuncMap(e.funcs)
	engine.Reload(e.reload)
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("views: load %s: %w", hint.Label, err)
	}

	e.engines[hint.Label] = engine
	return engine, nil
}

func toMap(binding interface{}) map[string]interface{} {
	data := make(map[string]interface{})
	switch b := binding.(type) {
	case map[string]interface{}:
		for k, v := range b {
			data[k] = v
		}
	case fiber.Map:
		for k, v := range b {
			data[k] = v
		}
	case nil:
	default:
		data["Data"] = binding
	}
	return data
}
