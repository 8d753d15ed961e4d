package inertia

import (
	"encoding/json"
	"os"
	"sync"
)

// ManifestEntry is one entry of a Vite manifest.
type ManifestEntry struct {
	File    string   `json:"file"`
	Name    string   `json:"name"`
	Src     string   `json:"src"`
	IsEntry bool     `json:"isEntry"`
	Imports []string `json:"imports"`
	CSS     []string `json:"css"`
}

// Assets resolves the built script and stylesheet for the entry point.
type Assets struct {
	path   string
	entry  string
	prefix string
	reload bool

	once sync.Once
	js   string
	css  string
}

// NewAssets reads manifestPath lazily. With reload set the manifest is
// re-read on every call so dev rebuilds are picked up.
func NewAssets(manifestPath, entry, prefix string, reload bool) *Assets {
	return &Assets{path: manifestPath, entry: entry, prefix: prefix, reload: reload}
}

// JS returns the script URL.
func (a *Assets) JS() string {
	js, _ := a.load()
	return js
}

// CSS returns the stylesheet URL, or "" when the entry has none.
func (a *Assets) CSS() string {
	_, css := a.load()
	return css
}

func (a *Assets) load() (string, string) {
	if a.reload {
		return a.read()
	}
	a.once.Do(func() {
		a.js, a.css = a.read()
	})
	return a.js, a.css
}

func (a *Assets) read() (js, css string) {
	js = a.prefix + "/inertia.js"

	data, err := os.ReadFile(a.path)
	if err != nil {
		return js, ""
	}
	var manifest map[string]ManifestEntry
	if err := json.Unmarshal(data, &manifest); err != nil {
		return js, ""
	}
	if entry, ok := manifest[a.entry]; ok {
		js = a.prefix + "/" + entry.File
		if len(entry.CSS) > 0 {
			css = a.prefix + "/" + entry.CSS[0]
		}
	}
	return js, css
}
