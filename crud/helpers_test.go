package crud

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/routing"
)

type article struct {
	ID        uint   `gorm:"primarykey"`
	Title     string `gorm:"not null"`
	Body      string
	Published bool
	Views     int
	Cover     string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type conn struct{ db *gorm.DB }

func (c conn) GetConnection() *gorm.DB { return c.db }

func testDB(t *testing.T) conn {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&article{}))
	return conn{db: db}
}

func testCrudConfig() config.CrudConfig {
	return config.CrudConfig{
		DefaultPageLength: 2,
		PageLengthMenu:    []int{2, 10},
		UploadsDisk:       "uploads",
		Operations: config.OperationsConfig{
			List: config.ListOperation{SearchableTable: true, ShowEntryCount: true},
		},
	}
}

// appRegistrar mounts routes straight on a fiber app under prefix.
type appRegistrar struct {
	app    *fiber.App
	prefix string
}

func (r appRegistrar) Add(method, path, name string, handlers ...fiber.Handler) routing.Route {
	full := routing.JoinPath(r.prefix, path)
	r.app.Add(method, full, handlers...).Name(name)
	return routing.Route{Method: method, Path: full, Name: name}
}

func (r appRegistrar) PathPrefix() string {
	return routing.JoinPath(r.prefix)
}

func seed(t *testing.T, c conn, titles ...string) {
	t.Helper()
	for _, title := range titles {
		require.NoError(t, c.db.Create(&article{Title: title, Body: "body of " + title}).Error)
	}
}

func jsonRequest(method, path string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Accept", fiber.MIMEApplicationJSON)
	if body != nil {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	return req
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decode(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}
