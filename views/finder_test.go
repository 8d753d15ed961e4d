package views

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labels(hints []Hint) []string {
	out := make([]string, 0, len(hints))
	for _, h := range hints {
		out = append(out, h.Label)
	}
	return out
}

func TestLoadWithFallbacks(t *testing.T) {
	t.Run("missing override dirs register only the stock views", func(t *testing.T) {
		f := NewFinder()
		LoadWithFallbacks(f, t.TempDir())

		assert.Equal(t, []string{"stock:base"}, labels(f.Hints(NamespaceBase)))
		assert.Equal(t, []string{"stock:crud"}, labels(f.Hints(NamespaceCrud)))
	})

	t.Run("existing override dir is searched first", func(t *testing.T) {
		resources := t.TempDir()
		crudDir := OverrideDir(resources, "crud")
		require.NoError(t, os.MkdirAll(crudDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(crudDir, "list.html"), []byte("custom list"), 0o644))

		f := NewFinder()
		LoadWithFallbacks(f, resources)

		assert.Equal(t, []string{crudDir, "stock:crud"}, labels(f.Hints(NamespaceCrud)))
		assert.Equal(t, []string{"stock:base"}, labels(f.Hints(NamespaceBase)))

		hint, name, err := f.Find("crud::list")
		require.NoError(t, err)
		assert.Equal(t, crudDir, hint.Label)
		assert.Equal(t, "list", name)

		hint, _, err = f.Find("crud::show")
		require.NoError(t, err)
		assert.Equal(t, "stock:crud", hint.Label, "views missing from the override fall back to stock")
	})

	t.Run("a file in place of the override dir is ignored", func(t *testing.T) {
		resources := t.TempDir()
		baseDir := OverrideDir(resources, "base")
		require.NoError(t, os.MkdirAll(filepath.Dir(baseDir), 0o755))
		require.NoError(t, os.WriteFile(baseDir, []byte("not a dir"), 0o644))

		f := NewFinder()
		LoadWithFallbacks(f, resources)
		assert.Equal(t, []string{"stock:base"}, labels(f.Hints(NamespaceBase)))
	})
}

func TestFinder_Find(t *testing.T) {
	f := NewFinder()
	f.AddNamespace("app", Hint{Label: "mem", FS: fstest.MapFS{
		"inc/button.html": {Data: []byte("button")},
	}})

	_, name, err := f.Find("app::inc.button")
	require.NoError(t, err)
	assert.Equal(t, "inc/button", name)

	_, name, err = f.Find("app::inc/button")
	require.NoError(t, err)
	assert.Equal(t, "inc/button", name)

	_, _, err = f.Find("app::missing")
	assert.ErrorIs(t, err, ErrViewNotFound)

	_, _, err = f.Find("nonamespace")
	assert.ErrorIs(t, err, ErrViewNotFound)

	_, _, err = f.Find("other::inc.button")
	assert.ErrorIs(t, err, ErrViewNotFound)

	assert.True(t, f.Exists("app::inc.button"))
	assert.ElementsMatch(t, []string{"app"}, f.Namespaces())
}

func TestStockViewsExist(t *testing.T) {
	f := NewFinder()
	LoadWithFallbacks(f, t.TempDir())

	for _, name := range []string{
		"backpack::layouts.app",
		"backpack::layouts.plain",
		"backpack::dashboard",
		"backpack::auth.login",
		"backpack::auth.passwords.email",
		"backpack::auth.passwords.reset",
		"crud::list",
		"crud::create",
		"crud::edit",
		"crud::show",
	} {
		assert.True(t, f.Exists(name), name)
	}
}
