package backpack

import (
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/backpack/auth"
	"github.com/karloscodes/backpack/crud"
	"github.com/karloscodes/backpack/inertia"
	"github.com/karloscodes/backpack/routing"
)

// StatusFor maps an error to an HTTP status. Fiber errors keep their code;
// package sentinels get the matching status.
func StatusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, crud.ErrNotFound), errors.Is(err, routing.ErrControllerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, crud.ErrOperationDenied):
		return fiber.StatusForbidden
	case errors.Is(err, auth.ErrUnauthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, auth.ErrThrottled):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// DefaultErrorHandler returns JSON for API requests and a small HTML page
// otherwise. Internal error details are only shown when dev is set.
func DefaultErrorHandler(logger *slog.Logger, dev bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusFor(err)

		attrs := []any{
			slog.Any("error", err),
			slog.String("path", c.Path()),
			slog.String("method", c.Method()),
			slog.Int("status", code),
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", attrs...)
		} else {
			logger.Debug("request rejected", attrs...)
		}

		message := err.Error()
		if code >= fiber.StatusInternalServerError && !dev {
			message = http.StatusText(code)
		}

		if !inertia.IsInertia(c) && c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
			return c.Status(code).JSON(fiber.Map{
				"error":   ErrorCodeName(code),
				"message": message,
			})
		}

		details := ""
		if dev || code < fiber.StatusInternalServerError {
			details = message
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Status(code).SendString(errorHTML(code, ErrorCodeName(code), details))
	}
}

// ErrorCodeName returns a human-readable name for an HTTP status code.
func ErrorCodeName(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Error"
}

func errorHTML(code int, title, message string) string {
	details := ""
	if message != "" {
		details = fmt.Sprintf(`<pre class="details">%s</pre>`, html.EscapeString(message))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%d - %s</title>
  <style>
    body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; display: flex; justify-content: center; align-items: center; min-height: 100vh; margin: 0; background: #f8f9fa; color: #333; }
    .box { text-align: center; padding: 40px; max-width: 520px; }
    h1 { font-size: 64px; margin: 0; color: #7c69ef; }
    .details { text-align: left; background: #f1f1f1; padding: 10px; border-radius: 4px; white-space: pre-wrap; }
  </style>
</head>
<body>
  <div class="box">
    <h1>%d</h1>
    <h2>%s</h2>
    %s
  </div>
</body>
</html>`, code, title, code, title, details)
}
