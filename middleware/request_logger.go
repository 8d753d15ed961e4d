package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestLogger emits one structured line per request. Paths starting
// with any of skip are not logged.
func RequestLogger(logger Logger, skip ...string) fiber.Handler {
	if len(skip) == 0 {
		skip = []string{"/_health", "/metrics"}
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		path := c.Path()
		for _, prefix := range skip {
			if strings.HasPrefix(path, prefix) {
				return err
			}
		}

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := []any{
			"method", c.Method(),
			"path", path,
			"status", status,
			"duration", elapsed,
			"ip", c.IP(),
		}
		if name := c.Route().Name; name != "" {
			fields = append(fields, "route", name)
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("http request", fields...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
		return err
	}
}
