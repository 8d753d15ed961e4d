package testsupport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/karloscodes/backpack"
	"github.com/karloscodes/backpack/auth"
	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/metrics"
	"github.com/karloscodes/backpack/routing"
)

// TestPanelOptions configures NewTestPanel.
type TestPanelOptions struct {
	// Models to auto-migrate in the test database
	Models []any

	// Config overrides the default test configuration.
	Config *config.Config

	// ConfigOptions are passed to config.Assemble.
	ConfigOptions []config.Option

	// Controllers resolves CRUD controllers mounted by Mount.
	Controllers *routing.Registry

	// Notifier receives password reset tokens.
	Notifier auth.Notifier

	// Mount registers application routes after the provider has booted.
	Mount func(s *backpack.Server, p *backpack.Provider)
}

// TestPanel is a booted admin panel on an in-memory database.
type TestPanel struct {
	t        testing.TB
	Provider *backpack.Provider
	Server   *backpack.Server
	App      *fiber.App
	DB       *TestDBManager

	cookies []*http.Cookie
}

// NewTestPanel registers and boots a provider on a fresh server and
// migrates the admin tables.
func NewTestPanel(t testing.TB, opts ...TestPanelOptions) *TestPanel {
	t.Helper()

	var options TestPanelOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	cfg := options.Config
	if cfg == nil {
		cfg = NewTestConfig(t)
	}
	assembled, err := config.Assemble(cfg, options.ConfigOptions...)
	if err != nil {
		t.Fatalf("testsupport: assemble config: %v", err)
	}

	db := NewTestDBManager(SetupTestDB(t, TestDBOptions{Models: options.Models}))
	logger := NewTestLogger()

	provider, err := backpack.NewProvider(assembled, backpack.ProviderOptions{
		DB:             db,
		Logger:         logger,
		Controllers:    options.Controllers,
		Metrics:        metrics.New(metrics.WithRegistry(prometheus.NewRegistry())),
		Notifier:       options.Notifier,
		LoginRateLimit: -1,
	})
	if err != nil {
		t.Fatalf("testsupport: create provider: %v", err)
	}

	serverCfg := backpack.DefaultServerConfig()
	serverCfg.Logger = logger
	serverCfg.DBManager = db
	serverCfg.Container = provider.Container()
	serverCfg.Views = provider.Views()
	serverCfg.EnableRequestLogger = false
	serverCfg.EnableCompress = false

	server, err := backpack.NewServer(serverCfg)
	if err != nil {
		t.Fatalf("testsupport: create server: %v", err)
	}

	if err := provider.Register(server); err != nil {
		t.Fatalf("testsupport: register provider: %v", err)
	}
	if err := provider.Boot(); err != nil {
		t.Fatalf("testsupport: boot provider: %v", err)
	}
	if err := provider.Migrate(context.Background()); err != nil {
		t.Fatalf("testsupport: migrate: %v", err)
	}

	if options.Mount != nil {
		options.Mount(server, provider)
	}

	return &TestPanel{
		t:        t,
		Provider: provider,
		Server:   server,
		App:      server.App(),
		DB:       db,
	}
}

// CreateAdmin inserts a user the admin guard can log in as.
func (tp *TestPanel) CreateAdmin(name, email, password string) *auth.User {
	tp.t.Helper()
	user, err := auth.NewGormProvider(tp.DB).CreateUser(context.Background(), name, email, password)
	if err != nil {
		tp.t.Fatalf("testsupport: create admin: %v", err)
	}
	return user
}

// ActingAs logs in through the login route and sends the session cookie
// with every later request.
func (tp *TestPanel) ActingAs(email, password string) *TestPanel {
	tp.t.Helper()
	resp := tp.PostForm(tp.MustURL(backpack.RouteLogin), url.Values{
		"email":    {email},
		"password": {password},
	})
	if resp.StatusCode != fiber.StatusSeeOther {
		tp.t.Fatalf("testsupport: login as %s: status %d", email, resp.StatusCode)
	}
	tp.cookies = resp.Cookies()
	return tp
}

// MustURL returns the path of a named route.
func (tp *TestPanel) MustURL(name string, params ...any) string {
	tp.t.Helper()
	path, err := tp.Server.URL(name, params...)
	if err != nil {
		tp.t.Fatalf("testsupport: %v", err)
	}
	return path
}

// Do performs req with the session cookies and returns the response.
// Unsafe methods get a same-origin Sec-Fetch-Site header unless the
// request already carries one.
func (tp *TestPanel) Do(req *http.Request) *http.Response {
	tp.t.Helper()
	if req.Method != fiber.MethodGet && req.Header.Get("Sec-Fetch-Site") == "" {
		req.Header.Set("Sec-Fetch-Site", "same-origin")
	}
	for _, c := range tp.cookies {
		req.AddCookie(c)
	}
	resp, err := tp.App.Test(req, -1)
	if err != nil {
		tp.t.Fatalf("testsupport: request failed: %v", err)
	}
	return resp
}

// Request performs a JSON request and returns the response.
func (tp *TestPanel) Request(method, path string, body ...string) *http.Response {
	tp.t.Helper()

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = strings.NewReader(body[0])
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	return tp.Do(req)
}

// Get performs a browser GET request.
func (tp *TestPanel) Get(path string) *http.Response {
	tp.t.Helper()
	return tp.Do(httptest.NewRequest(fiber.MethodGet, path, nil))
}

// PostForm submits a urlencoded form.
func (tp *TestPanel) PostForm(path string, values url.Values) *http.Response {
	tp.t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	return tp.Do(req)
}

// Post performs a POST request with JSON body.
func (tp *TestPanel) Post(path, body string) *http.Response {
	return tp.Request(fiber.MethodPost, path, body)
}

// Put performs a PUT request with JSON body.
func (tp *TestPanel) Put(path, body string) *http.Response {
	return tp.Request(fiber.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (tp *TestPanel) Delete(path string) *http.Response {
	return tp.Request(fiber.MethodDelete, path)
}

// Body reads and closes the response body.
func Body(t testing.TB, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("testsupport: read body: %v", err)
	}
	return string(b)
}
