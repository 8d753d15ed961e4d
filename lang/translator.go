// Package lang loads namespaced translations from TOML files laid out as
// <locale>/<group>.toml and resolves keys like "backpack::crud.add".
package lang

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Namespace is the admin panel translation namespace.
const Namespace = "backpack"

//go:embed stock
var stock embed.FS

// Translator resolves translation keys. Sources registered earlier for a
// namespace take precedence per key. It is safe for concurrent use.
type Translator struct {
	locale   string
	fallback string

	mu      sync.RWMutex
	sources map[string][]fs.FS
	groups  map[string]map[string]string
}

// New creates a translator for locale with fallback used for missing keys.
func New(locale, fallback string) *Translator {
	if locale == "" {
		locale = "en"
	}
	if fallback == "" {
		fallback = locale
	}
	return &Translator{
		locale:   locale,
		fallback: fallback,
		sources:  make(map[string][]fs.FS),
		groups:   make(map[string]map[string]string),
	}
}

// Locale returns the active locale.
func (t *Translator) Locale() string { return t.locale }

// AddNamespace appends a translation source for ns.
func (t *Translator) AddNamespace(ns string, fsys fs.FS) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[ns] = append(t.sources[ns], fsys)
	t.groups = make(map[string]map[string]string)
}

// OverrideDir is where applications publish translation overrides.
func OverrideDir(resourcesPath string) string {
	return filepath.Join(resourcesPath, "lang", "vendor", Namespace)
}

// LoadWithFallbacks registers the override directory, when it exists, then
// the stock translations.
func LoadWithFallbacks(t *Translator, resourcesPath string) {
	if info, err := os.Stat(OverrideDir(resourcesPath)); err == nil && info.IsDir() {
		t.AddNamespace(Namespace, os.DirFS(OverrideDir(resourcesPath)))
	}
	sub, err := fs.Sub(stock, "stock")
	if err != nil {
		panic(err)
	}
	t.AddNamespace(Namespace, sub)
}

// Get translates key, replacing :placeholders from replace. Keys have the
// form "namespace::group.item"; nested TOML tables use further dots.
// Unknown keys are returned unchanged.
func (t *Translator) Get(key string, replace map[string]string) string {
	line, ok := t.lookup(t.locale, key)
	if !ok && t.fallback != t.locale {
		line, ok = t.lookup(t.fallback, key)
	}
	if !ok {
		return key
	}
	return Replace(line, replace)
}

// Has reports whether key resolves in the active or fallback locale.
func (t *Translator) Has(key string) bool {
	if _, ok := t.lookup(t.locale, key); ok {
		return true
	}
	_, ok := t.lookup(t.fallback, key)
	return ok
}

func (t *Translator) lookup(locale, key string) (string, bool) {
	ns, rest, ok := strings.Cut(key, "::")
	if !ok {
		return "", false
	}
	group, item, ok := strings.Cut(rest, ".")
	if !ok {
		return "", false
	}

	lines, err := t.group(ns, locale, group)
	if err != nil {
		return "", false
	}
	line, ok := lines[item]
	return line, ok
}

func (t *Translator) group(ns, locale, group string) (map[string]string, error) {
	cacheKey := ns + "|" + locale + "|" + group

	t.mu.RLock()
	lines, ok := t.groups[cacheKey]
	sources := t.sources[ns]
	t.mu.RUnlock()
	if ok {
		return lines, nil
	}

	lines = make(map[string]string)
	// Later sources only fill keys earlier ones lack.
	for i := len(sources) - 1; i >= 0; i-- {
		loaded, err := loadFile(sources[i], locale+"/"+group+".toml")
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			lines[k] = v
		}
	}

	t.mu.Lock()
	t.groups[cacheKey] = lines
	t.mu.Unlock()
	return lines, nil
}

func loadFile(fsys fs.FS, name string) (map[string]string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("lang: read %s: %w", name, err)
	}

	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("lang: parse %s: %w", name, err)
	}

	lines := make(map[string]string)
	flatten("", tree, lines)
	return lines, nil
}

func flatten(prefix string, tree map[string]any, out map[string]string) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Replace substitutes :name placeholders. Longer names are replaced first
// so ":total" is not clobbered by ":to".
func Replace(line string, replace map[string]string) string {
	if len(replace) == 0 {
		return line
	}
	keys := make([]string, 0, len(replace))
	for k := range replace {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	for _, k := range keys {
		line = strings.ReplaceAll(line, ":"+k, replace[k])
	}
	return line
}
