package backpack

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/backpack/auth"
	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/crud"
	"github.com/karloscodes/backpack/routing"
)

type product struct {
	ID        uint   `gorm:"primarykey"`
	Name      string `gorm:"not null"`
	Price     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func createAdmin(t *testing.T, f *fixture, password string) *auth.User {
	t.Helper()
	user, err := auth.NewGormProvider(f.db).CreateUser(context.Background(), "Ada Admin", "ada@example.com", password)
	require.NoError(t, err)
	return user
}

func login(t *testing.T, f *fixture, email, password string) *http.Cookie {
	t.Helper()
	resp, _ := send(t, f.server.App(), formRequest("POST", "/admin/login", url.Values{
		"email":    {email},
		"password": {password},
	}))
	require.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	session := cookieNamed(resp, "backpack_session")
	require.NotNil(t, session)
	return session
}

func TestProvider_RegisterBindsSingletons(t *testing.T) {
	f := newFixture(t)
	c := f.provider.Container()

	first := MustResolve[*crud.Panel](c, BindingCrud)
	second := MustResolve[*crud.Panel](c, BindingCrud)
	assert.Same(t, first, second)
	assert.Same(t, MustResolve[*crud.Widgets](c, BindingWidgets), f.provider.Widgets())

	clone := f.provider.Panel()
	assert.NotSame(t, first, clone)
	clone.SetEntityNameStrings("product", "products")
	assert.Empty(t, first.EntityName(), "clones do not leak into the shared panel")

	for _, name := range []string{BindingConfig, BindingAuth, BindingTranslator, BindingViews, BindingStorage, BindingMetrics} {
		assert.True(t, c.Bound(name), name)
	}
	assert.True(t, f.server.HasMacro(MacroCRUD))
}

func TestProvider_RegisterKeepsExistingMacro(t *testing.T) {
	assembled, err := config.Assemble(testAppConfig(t))
	require.NoError(t, err)
	p, err := NewProvider(assembled, ProviderOptions{DB: newMemDB(t), Logger: discardLogger()})
	require.NoError(t, err)

	s := newTestServer(t)
	custom := []routing.Route{{Method: "GET", Path: "/custom", Name: "custom"}}
	s.Macro(MacroCRUD, func(*Server, string, string) ([]routing.Route, error) { return custom, nil })

	require.NoError(t, p.Register(s))
	routes, err := s.CRUD("users", "UsersController")
	require.NoError(t, err)
	assert.Equal(t, custom, routes)
}

func TestProvider_BootOrder(t *testing.T) {
	assembled, err := config.Assemble(testAppConfig(t))
	require.NoError(t, err)
	p, err := NewProvider(assembled, ProviderOptions{DB: newMemDB(t), Logger: discardLogger()})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Boot(), ErrNotRegistered)

	f := newFixture(t)
	assert.ErrorIs(t, f.provider.Boot(), ErrAlreadyBooted)
}

func TestProvider_RegisterTwice(t *testing.T) {
	f := newFixture(t)
	before := len(f.server.App().Stack()[0])

	assert.ErrorIs(t, f.provider.Register(f.server), ErrAlreadyRegistered)
	assert.Equal(t, before, len(f.server.App().Stack()[0]), "no middleware added twice")
}

func TestNewProvider_RequiresDB(t *testing.T) {
	assembled, err := config.Assemble(testAppConfig(t))
	require.NoError(t, err)
	_, err = NewProvider(assembled, ProviderOptions{})
	assert.Error(t, err)
	_, err = NewProvider(nil, ProviderOptions{DB: newMemDB(t)})
	assert.Error(t, err)
}

func TestProvider_BootNamesRoutes(t *testing.T) {
	f := newFixture(t)

	cases := map[string]string{
		RouteLogin:         "/admin/login",
		RouteLogout:        "/admin/logout",
		RoutePasswordEmail: "/admin/password/email",
		RoutePasswordReset: "/admin/password/reset",
		RouteDashboard:     "/admin/dashboard",
		"backpack.metrics": "/metrics",
		"backpack.health":  "/_health",
	}
	for name, want := range cases {
		got, err := f.server.URL(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	got, err := f.server.URL(RoutePasswordResetForm, "abc")
	require.NoError(t, err)
	assert.Equal(t, "/admin/password/reset/abc", got)
}

func TestProvider_BootSkipsDisabledRoutes(t *testing.T) {
	assembled, err := config.Assemble(testAppConfig(t), config.WithBase(map[string]any{
		"setup_auth_routes":      false,
		"setup_dashboard_routes": false,
	}))
	require.NoError(t, err)
	p, err := NewProvider(assembled, ProviderOptions{DB: newMemDB(t), Logger: discardLogger()})
	require.NoError(t, err)
	s := newTestServer(t, func(c *ServerConfig) { c.Views = p.Views() })
	require.NoError(t, p.Register(s))
	require.NoError(t, p.Boot())

	_, err = s.URL(RouteLogin)
	assert.ErrorIs(t, err, ErrRouteNotFound)
	_, err = s.URL(RouteDashboard)
	assert.ErrorIs(t, err, ErrRouteNotFound)
	_, err = s.URL("backpack.metrics")
	assert.NoError(t, err)
}

func TestProvider_SessionLastsSessionTimeout(t *testing.T) {
	f := newFixture(t)
	createAdmin(t, f, "secret-password")

	session := login(t, f, "ada@example.com", "secret-password")
	assert.Equal(t, 3600, session.MaxAge)
}

func TestProvider_LoginFlow(t *testing.T) {
	f := newFixture(t)
	createAdmin(t, f, "secret-password")
	app := f.server.App()

	resp, _ := send(t, app, getRequest("/admin/dashboard"))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))

	resp, body := send(t, app, getRequest("/admin/login"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/admin/login"`)

	resp, body = send(t, app, formRequest("POST", "/admin/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"wrong-password"},
	}))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "These credentials do not match our records.")
	assert.Contains(t, body, "ada@example.com")

	session := login(t, f, "ada@example.com", "secret-password")

	resp, body = send(t, app, getRequest("/admin/dashboard", session))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Welcome to Backpack!")
	assert.Contains(t, body, "Ada Admin")

	resp, _ = send(t, app, getRequest("/admin", session))
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/admin/dashboard", resp.Header.Get("Location"))

	resp, _ = send(t, app, formRequest("POST", "/admin/logout", url.Values{}, session))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/login", resp.Header.Get("Location"))
}

func TestProvider_LoginJSON(t *testing.T) {
	f := newFixture(t)
	createAdmin(t, f, "secret-password")

	req := formRequest("POST", "/admin/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"secret-password"},
	})
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	resp, body := send(t, f.server.App(), req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"email":"ada@example.com"`)
	assert.NotContains(t, body, "password")

	req = getRequest("/admin/dashboard")
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	resp, _ = send(t, f.server.App(), req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestProvider_PasswordReset(t *testing.T) {
	var issued string
	f := newFixture(t, func(o *ProviderOptions) {
		o.Notifier = func(_ context.Context, _ *auth.User, token string) error {
			issued = token
			return nil
		}
	})
	createAdmin(t, f, "old-password")
	app := f.server.App()

	resp, _ := send(t, app, formRequest("POST", "/admin/password/email", url.Values{"email": {"nobody@example.com"}}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode, "unknown addresses get the same answer")
	assert.Empty(t, issued)

	resp, _ = send(t, app, formRequest("POST", "/admin/password/email", url.Values{"email": {"ada@example.com"}}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/password/reset", resp.Header.Get("Location"))
	require.NotEmpty(t, issued)

	resp, body := send(t, app, getRequest("/admin/password/reset/"+issued+"?email=ada@example.com"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, issued)

	resp, body = send(t, app, formRequest("POST", "/admin/password/reset", url.Values{
		"email":                 {"ada@example.com"},
		"token":                 {issued},
		"password":              {"new-password"},
		"password_confirmation": {"different"},
	}))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "The password confirmation does not match.")

	resp, body = send(t, app, formRequest("POST", "/admin/password/reset", url.Values{
		"email":                 {"ada@example.com"},
		"token":                 {issued},
		"password":              {"short"},
		"password_confirmation": {"short"},
	}))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "The password must be at least 8 characters.")

	resp, body = send(t, app, formRequest("POST", "/admin/password/reset", url.Values{
		"email":                 {"ada@example.com"},
		"token":                 {"forged"},
		"password":              {"new-password"},
		"password_confirmation": {"new-password"},
	}))
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "This password reset token is invalid.")

	resp, _ = send(t, app, formRequest("POST", "/admin/password/reset", url.Values{
		"email":                 {"ada@example.com"},
		"token":                 {issued},
		"password":              {"new-password"},
		"password_confirmation": {"new-password"},
	}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/admin/dashboard", resp.Header.Get("Location"))
	assert.NotNil(t, cookieNamed(resp, "backpack_session"))

	login(t, f, "ada@example.com", "new-password")
}

func TestProvider_ViewOverrideWins(t *testing.T) {
	cfg := testAppConfig(t)
	dir := filepath.Join(cfg.BasePath, "resources", "views", "vendor", "backpack", "base", "auth")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "login.html"), []byte(`<p>custom login for {{ .ProjectName }}</p>`), 0o644))

	f := newFixtureWith(t, cfg)

	resp, body := send(t, f.server.App(), getRequest("/admin/login"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "custom login for Backpack")

	resp, body = send(t, f.server.App(), getRequest("/admin/password/reset"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "custom login", "views without an override come from the stock set")
}

func TestProvider_MetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	createAdmin(t, f, "secret-password")
	app := f.server.App()

	send(t, app, formRequest("POST", "/admin/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"nope"},
	}))

	resp, body := send(t, app, getRequest("/metrics"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "backpack_auth_attempts_total")
	assert.Contains(t, body, "backpack_http_requests_total")

	resp, body = send(t, app, getRequest("/_health"))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestProvider_CrudResourceBehindAdminGuard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.GetConnection().AutoMigrate(&product{}))
	createAdmin(t, f, "secret-password")

	f.provider.Controllers().MustRegister(`Admin\ProductCrudController`, func() (routing.Controller, error) {
		return crud.NewController(f.provider.Panel(), crud.NewRepository[product](f.db, discardLogger()), f.provider.CrudDeps(),
			func(p *crud.Panel) { p.SetEntityNameStrings("product", "products") })
	})

	var routes []routing.Route
	f.provider.Admin(func(s *Server) {
		s.Group(routing.Group{Name: routing.N("admin."), Namespace: "Admin"}, func(s *Server) {
			routes = s.MustCRUD("product", "ProductCrudController")
		})
	})
	require.NotEmpty(t, routes)

	path, err := f.server.URL("admin.product.index")
	require.NoError(t, err)
	assert.Equal(t, "/admin/product", path)

	req := getRequest("/admin/product")
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	resp, _ := send(t, f.server.App(), req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	session := login(t, f, "ada@example.com", "secret-password")

	req = formRequest("POST", "/admin/product", url.Values{"name": {"Widget"}, "price": {"12"}}, session)
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	resp, _ = send(t, f.server.App(), req)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	req = getRequest("/admin/product", session)
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	resp, body := send(t, f.server.App(), req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Widget")
}
