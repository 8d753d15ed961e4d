package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// MethodOverrideField is the form field HTML forms use to send PUT and
// DELETE through a POST.
const MethodOverrideField = "_method"

// MethodOverride rewrites POST requests carrying _method (form field or
// X-HTTP-Method-Override header) to PUT, PATCH or DELETE.
func MethodOverride() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		method := c.Get("X-HTTP-Method-Override")
		if method == "" {
			method = c.FormValue(MethodOverrideField)
		}
		switch m := strings.ToUpper(strings.TrimSpace(method)); m {
		case fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
			c.Method(m)
		}
		return c.Next()
	}
}
