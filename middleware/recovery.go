package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
)

// Recover turns panics into 500s and logs them with the request path.
func Recover(logger Logger) fiber.Handler {
	return fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			if logger != nil {
				logger.Error("panic recovered",
					"method", c.Method(),
					"path", c.Path(),
					"panic", fmt.Sprint(e),
				)
			}
		},
	})
}
