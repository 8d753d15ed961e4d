package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
)

// Helmet sets security headers on admin responses. The admin panel is
// never framed.
func Helmet(contentSecurityPolicy string) fiber.Handler {
	return helmet.New(helmet.Config{
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "same-origin",
		ContentSecurityPolicy:     contentSecurityPolicy,
		CrossOriginEmbedderPolicy: "unsafe-none",
	})
}
