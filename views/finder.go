// Package views resolves namespaced view names ("crud::list") against an
// ordered list of hints per namespace and renders them with
// gofiber/template/html.
package views

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Extension is the template file extension.
const Extension = ".html"

// Delimiter separates a namespace from the view path.
const Delimiter = "::"

// Namespaces registered by LoadWithFallbacks.
const (
	NamespaceBase = "backpack"
	NamespaceCrud = "crud"
)

//go:embed stock
var stock embed.FS

// ErrViewNotFound is returned when no hint holds the view.
var ErrViewNotFound = errors.New("views: view not found")

// Hint is one search location for a namespace.
type Hint struct {
	// Label identifies the location in logs and errors: a directory path
	// or "stock:<dir>".
	Label string
	FS    fs.FS
}

// Finder maps namespaces to ordered hints. The first hint holding a view
// wins. It is safe for concurrent use.
type Finder struct {
	mu    sync.RWMutex
	hints map[string][]Hint
}

// NewFinder creates an empty finder.
func NewFinder() *Finder {
	return &Finder{hints: make(map[string][]Hint)}
}

// AddNamespace appends a hint to ns.
func (f *Finder) AddNamespace(ns string, hint Hint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hints[ns] = append(f.hints[ns], hint)
}

// AddDirIfExists appends dir to ns when it exists on disk and reports
// whether it did.
func (f *Finder) AddDirIfExists(ns, dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f.AddNamespace(ns, Hint{Label: dir, FS: os.DirFS(dir)})
	return true
}

// Hints returns the hints registered for ns in lookup order.
func (f *Finder) Hints(ns string) []Hint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Hint(nil), f.hints[ns]...)
}

// Namespaces returns the registered namespace names.
func (f *Finder) Namespaces() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.hints))
	for ns := range f.hints {
		names = append(names, ns)
	}
	return names
}

// Find resolves a view name to the hint holding it and the template name
// inside that hint. "crud::inc.button" becomes "inc/button".
func (f *Finder) Find(name string) (Hint, string, error) {
	ns, view, ok := strings.Cut(name, Delimiter)
	if !ok {
		return Hint{}, "", fmt.Errorf("%w: %q has no namespace", ErrViewNotFound, name)
	}

	rel := TemplateName(view)
	for _, hint := range f.Hints(ns) {
		if _, err := fs.Stat(hint.FS, rel+Extension); err == nil {
			return hint, rel, nil
		}
	}
	return Hint{}, "", fmt.Errorf("%w: %q", ErrViewNotFound, name)
}

// Exists reports whether name resolves.
func (f *Finder) Exists(name string) bool {
	_, _, err := f.Find(name)
	return err == nil
}

// TemplateName converts a dotted view path to a slash separated one.
func TemplateName(view string) string {
	return path.Clean(strings.ReplaceAll(strings.Trim(view, "./"), ".", "/"))
}

// OverrideDir returns the published override directory for a namespace
// folder ("base" or "crud").
func OverrideDir(resourcesPath, folder string) string {
	return filepath.Join(resourcesPath, "views", "vendor", "backpack", folder)
}

// LoadWithFallbacks registers the published override directories first,
// only if they exist, then the stock views unconditionally.
func LoadWithFallbacks(f *Finder, resourcesPath string) {
	f.AddDirIfExists(NamespaceBase, OverrideDir(resourcesPath, "base"))
	f.AddDirIfExists(NamespaceCrud, OverrideDir(resourcesPath, "crud"))

	f.AddNamespace(NamespaceBase, stockHint("base"))
	f.AddNamespace(NamespaceCrud, stockHint("crud"))
}

func stockHint(folder string) Hint {
	sub, err := fs.Sub(stock, "stock/"+folder)
	if err != nil {
		panic(err)
	}
	return Hint{Label: "stock:" + folder, FS: sub}
}
