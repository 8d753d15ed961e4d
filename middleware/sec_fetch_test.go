package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func secFetchApp(cfg ...SecFetchSiteConfig) *fiber.App {
	app := fiber.New()
	app.Use(SecFetchSite(cfg...))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/admin/article", ok)
	app.Post("/admin/article", ok)
	app.Post("/skip", ok)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestSecFetchSite(t *testing.T) {
	t.Run("blocks missing header", func(t *testing.T) {
		status := doRequest(t, secFetchApp(), "POST", "/admin/article", nil)
		assert.Equal(t, fiber.StatusForbidden, status)
	})

	t.Run("allows same-origin and direct navigation", func(t *testing.T) {
		app := secFetchApp()
		for _, site := range []string{"same-origin", "none"} {
			status := doRequest(t, app, "POST", "/admin/article", map[string]string{"Sec-Fetch-Site": site})
			assert.Equal(t, fiber.StatusOK, status, site)
		}
	})

	t.Run("blocks cross-site", func(t *testing.T) {
		status := doRequest(t, secFetchApp(), "POST", "/admin/article", map[string]string{
			"Sec-Fetch-Site": "cross-site",
			"Origin":         "https://evil.example",
		})
		assert.Equal(t, fiber.StatusForbidden, status)
	})

	t.Run("safe methods pass", func(t *testing.T) {
		status := doRequest(t, secFetchApp(), "GET", "/admin/article", nil)
		assert.Equal(t, fiber.StatusOK, status)
	})

	t.Run("bearer clients pass", func(t *testing.T) {
		status := doRequest(t, secFetchApp(), "POST", "/admin/article", map[string]string{
			"Authorization": "Bearer abc.def.ghi",
		})
		assert.Equal(t, fiber.StatusOK, status)

		strict := DefaultSecFetchSiteConfig()
		strict.AllowBearer = false
		status = doRequest(t, secFetchApp(strict), "POST", "/admin/article", map[string]string{
			"Authorization": "Bearer abc.def.ghi",
		})
		assert.Equal(t, fiber.StatusForbidden, status)
	})

	t.Run("next skips validation", func(t *testing.T) {
		app := secFetchApp(SecFetchSiteConfig{
			Next: func(c *fiber.Ctx) bool { return c.Path() == "/skip" },
		})
		assert.Equal(t, fiber.StatusOK, doRequest(t, app, "POST", "/skip", nil))
		assert.Equal(t, fiber.StatusForbidden, doRequest(t, app, "POST", "/admin/article", nil))
	})
}
