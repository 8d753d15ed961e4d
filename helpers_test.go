package backpack

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/metrics"
)

type memDB struct{ db *gorm.DB }

func (m memDB) GetConnection() *gorm.DB { return m.db }

func newMemDB(t *testing.T) memDB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return memDB{db: db}
}

func testAppConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		AppName:         "shop",
		Environment:     config.Test,
		BasePath:        dir,
		ResourcesPath:   "resources",
		ConfigDirectory: dir,
		SessionSecret:   "test-secret",
		SessionTimeout:  3600,
		DatabaseDriver:  config.DriverSQLite,
	}
}

type fixture struct {
	provider *Provider
	server   *Server
	db       memDB
}

// newFixture boots a provider on a server backed by in-memory SQLite.
func newFixture(t *testing.T, opts ...func(*ProviderOptions)) *fixture {
	t.Helper()
	return newFixtureWith(t, testAppConfig(t), opts...)
}

func newFixtureWith(t *testing.T, appCfg *config.Config, opts ...func(*ProviderOptions)) *fixture {
	t.Helper()
	assembled, err := config.Assemble(appCfg)
	require.NoError(t, err)

	db := newMemDB(t)
	po := ProviderOptions{
		DB:             db,
		Logger:         discardLogger(),
		Metrics:        metrics.New(metrics.WithRegistry(prometheus.NewRegistry())),
		LoginRateLimit: -1,
	}
	for _, o := range opts {
		o(&po)
	}
	p, err := NewProvider(assembled, po)
	require.NoError(t, err)

	cfg := DefaultServerConfig()
	cfg.Logger = discardLogger()
	cfg.DBManager = db
	cfg.Container = p.Container()
	cfg.Views = p.Views()
	cfg.EnableRequestLogger = false
	cfg.EnableCompress = false
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Register(srv))
	require.NoError(t, p.Boot())
	require.NoError(t, p.Migrate(t.Context()))

	return &fixture{provider: p, server: srv, db: db}
}

func send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func formRequest(method, path string, values url.Values, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func getRequest(path string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
