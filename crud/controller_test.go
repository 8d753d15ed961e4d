package crud

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/inertia"
	"github.com/karloscodes/backpack/lang"
	"github.com/karloscodes/backpack/metrics"
	"github.com/karloscodes/backpack/pkg/flash"
	"github.com/karloscodes/backpack/routing"
	"github.com/karloscodes/backpack/storage"
	"github.com/karloscodes/backpack/views"
)

type fixture struct {
	app     *fiber.App
	db      conn
	ctl     *Controller[article]
	routes  []routing.Route
	uploads string
}

func articlePanel(p *Panel) {
	p.SetEntityNameStrings("article", "articles")
	p.AddColumn(Column{Name: "title", Searchable: true})
	p.AddColumn(Column{Name: "published"})
	p.AddField(Field{Name: "title", Required: true})
	p.AddField(Field{Name: "body", Type: FieldTextarea})
	p.AddField(Field{Name: "published", Type: FieldCheckbox})
	p.AddField(Field{Name: "cover", Type: FieldUpload})
}

func newFixture(t *testing.T, setup ...func(*Panel)) *fixture {
	t.Helper()
	db := testDB(t)

	translator := lang.New("en", "en")
	lang.LoadWithFallbacks(translator, t.TempDir())

	finder := views.NewFinder()
	views.LoadWithFallbacks(finder, t.TempDir())
	engine := views.NewEngine(finder).AddFuncMap(views.Helpers{
		RoutePrefix: "/admin",
		Guard:       "backpack",
		Translate:   translator.Get,
	}.FuncMap())

	uploads := t.TempDir()
	disks := storage.NewManager(config.Filesystems{
		Default: "uploads",
		Disks:   map[string]config.Disk{"uploads": {Driver: storage.DriverLocal, Root: uploads, URL: "/uploads"}},
	})

	flasher := flash.New("secret", false)
	app := fiber.New(fiber.Config{Views: engine})
	app.Use(flasher.Middleware())

	deps := Deps{
		Layout:    "backpack::layouts.app",
		Inertia:   inertia.New(inertia.Options{Version: "1"}),
		Metrics:   metrics.New(metrics.WithRegistry(prometheus.NewRegistry())),
		Storage:   disks,
		Flash:     flasher,
		Translate: translator.Get,
	}

	setups := append([]func(*Panel){articlePanel}, setup...)
	ctl, err := NewController(NewPanel(testCrudConfig()), NewRepository[article](db, nil), deps, setups...)
	require.NoError(t, err)

	routes, err := ctl.SetupRoutes(appRegistrar{app: app, prefix: "/admin"}, "article", "admin.article", "ArticleCrudController")
	require.NoError(t, err)

	return &fixture{app: app, db: db, ctl: ctl, routes: routes, uploads: uploads}
}

func routeNames(routes []routing.Route) []string {
	names := make([]string, 0, len(routes))
	for _, r := range routes {
		names = append(names, r.Method+" "+r.Path+" "+r.Name)
	}
	return names
}

func TestSetupRoutes_RegistersEveryOperation(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{
		"GET /admin/article admin.article.index",
		"POST /admin/article/search admin.article.search",
		"GET /admin/article/create admin.article.create",
		"POST /admin/article admin.article.store",
		"GET /admin/article/:id/show admin.article.show",
		"GET /admin/article/:id/edit admin.article.edit",
		"PUT /admin/article/:id admin.article.update",
		"DELETE /admin/article/:id admin.article.destroy",
	}, routeNames(f.routes))
	assert.Equal(t, "/admin/article", f.ctl.Panel().Route())
}

func TestSetupRoutes_SkipsDeniedOperations(t *testing.T) {
	f := newFixture(t, func(p *Panel) { p.Deny(OpDelete, OpCreate) })

	for _, name := range routeNames(f.routes) {
		assert.NotContains(t, name, ".destroy")
		assert.NotContains(t, name, ".store")
		assert.NotContains(t, name, ".create")
	}
	resp, _ := do(t, f.app, jsonRequest("DELETE", "/admin/article/1", nil))
	assert.Equal(t, fiber.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSetupRoutes_RejectsEmptyName(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctl.SetupRoutes(appRegistrar{app: fiber.New()}, "", "x", "X")
	assert.Error(t, err)
}

func TestController_JSONLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, body := do(t, f.app, jsonRequest("POST", "/admin/article", map[string]any{"title": "First", "published": true}))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	created := decode(t, body)["data"].(map[string]any)
	assert.Equal(t, "First", created["title"])
	assert.Equal(t, true, created["published"])
	id := fmt.Sprint(created["id"])

	seed(t, f.db, "Second", "Third")

	resp, body = do(t, f.app, jsonRequest("GET", "/admin/article?page=2", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	listing := decode(t, body)
	meta := listing["meta"].(map[string]any)
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, float64(2), meta["per_page"])
	assert.Len(t, listing["data"], 1)

	resp, body = do(t, f.app, jsonRequest("PUT", "/admin/article/"+id, map[string]any{"body": "updated"}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	updated := decode(t, body)["data"].(map[string]any)
	assert.Equal(t, "updated", updated["body"])
	assert.Equal(t, "First", updated["title"], "partial updates keep other columns")
	assert.Equal(t, true, updated["published"], "absent checkboxes are left alone for JSON")

	resp, body = do(t, f.app, jsonRequest("GET", "/admin/article/"+id+"/show", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "updated", decode(t, body)["data"].(map[string]any)["body"])

	resp, _ = do(t, f.app, jsonRequest("DELETE", "/admin/article/"+id, nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = do(t, f.app, jsonRequest("DELETE", "/admin/article/"+id, nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, f.app, jsonRequest("GET", "/admin/article/"+id+"/show", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestController_JSONLargeIntegers(t *testing.T) {
	f := newFixture(t, func(p *Panel) {
		p.AddField(Field{Name: "views", Type: FieldNumber})
	})

	resp, body := do(t, f.app, jsonRequest("POST", "/admin/article", map[string]any{"title": "t", "views": 1000000}))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	created := decode(t, body)["data"].(map[string]any)
	assert.Equal(t, float64(1000000), created["views"])

	id := fmt.Sprint(created["id"])
	resp, body = do(t, f.app, jsonRequest("PUT", "/admin/article/"+id, map[string]any{"views": 2500000}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, float64(2500000), decode(t, body)["data"].(map[string]any)["views"])
}

func TestController_ValidationErrors(t *testing.T) {
	f := newFixture(t)

	resp, body := do(t, f.app, jsonRequest("POST", "/admin/article", map[string]any{"body": "no title"}))
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	errs := decode(t, body)["errors"].(map[string]any)
	assert.Equal(t, "The Title field is required.", errs["title"])

	form := url.Values{"title": {""}}
	req := httptest.NewRequest("POST", "/admin/article", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, body = do(t, f.app, req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "The Title field is required.")
	assert.Contains(t, string(body), `<form method="POST" action="/admin/article"`)
}

func TestController_Search(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "Go generics", "Fiber routing", "go modules")

	form := url.Values{"search": {"go"}, "per_page": {"10"}}
	req := httptest.NewRequest("POST", "/admin/article/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, body := do(t, f.app, req)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, float64(3), out["recordsTotal"])
	assert.Equal(t, float64(2), out["recordsFiltered"])
}

func TestController_HTMLListAndFormFlow(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "Rendered title")

	resp, body := do(t, f.app, httptest.NewRequest("GET", "/admin/article", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	html := string(body)
	assert.Contains(t, html, "<h1>articles</h1>")
	assert.Contains(t, html, "Rendered title")
	assert.Contains(t, html, `href="/admin/article/1/edit"`)
	assert.Contains(t, html, "Showing 1 to 1 of 1 entries")

	resp, body = do(t, f.app, httptest.NewRequest("GET", "/admin/article/create", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `name="title"`)

	form := url.Values{"title": {"From form"}, "published": {"true"}}
	req := httptest.NewRequest("POST", "/admin/article", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, _ = do(t, f.app, req)
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/article", resp.Header.Get("Location"))

	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == flash.DefaultCookieName {
			cookie = c.Name + "=" + c.Value
		}
	}
	require.NotEmpty(t, cookie)

	req = httptest.NewRequest("GET", "/admin/article", nil)
	req.Header.Set("Cookie", cookie)
	_, body = do(t, f.app, req)
	assert.Contains(t, string(body), "The item has been added successfully.")

	// An HTML update without the checkbox unticks it.
	form = url.Values{"title": {"From form"}}
	req = httptest.NewRequest("PUT", "/admin/article/2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, _ = do(t, f.app, req)
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)

	var stored article
	require.NoError(t, f.db.db.First(&stored, 2).Error)
	assert.False(t, stored.Published)
}

func TestController_Upload(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "With cover"))
	part, err := w.CreateFormFile("cover", "Cover.PNG")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/admin/article", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	resp, body := do(t, f.app, req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	cover := decode(t, body)["data"].(map[string]any)["cover"].(string)
	assert.True(t, strings.HasPrefix(cover, "articles/"))
	assert.True(t, strings.HasSuffix(cover, ".png"))

	data, err := os.ReadFile(filepath.Join(f.uploads, filepath.FromSlash(cover)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestController_BeforeSaveHook(t *testing.T) {
	f := newFixture(t)
	f.ctl.BeforeSave(func(c *fiber.Ctx, op Operation, entry *article, values map[string]string) error {
		if strings.Contains(entry.Title, "spam") {
			return ValidationError(map[string]string{"title": "no spam"})
		}
		if op == OpCreate {
			entry.Views = 100
		}
		return nil
	})

	resp, body := do(t, f.app, jsonRequest("POST", "/admin/article", map[string]any{"title": "spam spam"}))
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "no spam", decode(t, body)["errors"].(map[string]any)["title"])

	resp, body = do(t, f.app, jsonRequest("POST", "/admin/article", map[string]any{"title": "ham"}))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(100), decode(t, body)["data"].(map[string]any)["views"])
}

func TestController_Inertia(t *testing.T) {
	f := newFixture(t)
	seed(t, f.db, "Inertia entry")

	req := httptest.NewRequest("GET", "/admin/article", nil)
	req.Header.Set(inertia.HeaderInertia, "true")
	req.Header.Set(inertia.HeaderVersion, "1")
	resp, body := do(t, f.app, req)

	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	page := decode(t, body)
	assert.Equal(t, "Crud/List", page["component"])
	props := page["props"].(map[string]any)
	assert.Equal(t, "list", props["operation"])
	assert.Len(t, props["data"], 1)
}

func TestValidationError(t *testing.T) {
	err := ValidationError(map[string]string{"title": "bad"})
	var verr *validationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "title: bad")
}
