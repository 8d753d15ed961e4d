// Package flash carries one-shot status messages across the redirect
// that follows a form submission.
package flash

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/backpack/crypto"
)

// Message types understood by the stock layouts.
const (
	TypeSuccess = "success"
	TypeError   = "error"
	TypeInfo    = "info"
)

// DefaultCookieName is the cookie the message travels in.
const DefaultCookieName = "backpack_flash"

const localsKey = "backpack_flash"

// Message is a single flash message.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Flasher reads and writes signed flash cookies.
type Flasher struct {
	cookie string
	secret string
	secure bool
}

// New creates a Flasher signing cookies with secret.
func New(secret string, secure bool) *Flasher {
	return &Flasher{cookie: DefaultCookieName, secret: secret, secure: secure}
}

// Set queues msg for the next request.
func (f *Flasher) Set(c *fiber.Ctx, typ, msg string) {
	payload, err := json.Marshal(Message{Type: typ, Message: msg})
	if err != nil {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     f.cookie,
		Value:    crypto.Sign(payload, f.secret),
		Path:     "/",
		HTTPOnly: true,
		Secure:   f.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(5 * time.Minute),
	})
}

// Success queues a success message.
func (f *Flasher) Success(c *fiber.Ctx, msg string) { f.Set(c, TypeSuccess, msg) }

// Error queues an error message.
func (f *Flasher) Error(c *fiber.Ctx, msg string) { f.Set(c, TypeError, msg) }

// Middleware consumes a pending message, exposing it through Get for the
// rest of the request. Tampered cookies are dropped.
func (f *Flasher) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(f.cookie)
		if raw == "" {
			return c.Next()
		}

		c.Cookie(&fiber.Cookie{
			Name:     f.cookie,
			Value:    "",
			Path:     "/",
			HTTPOnly: true,
			Secure:   f.secure,
			Expires:  time.Unix(0, 0),
		})

		payload, err := crypto.Unsign(raw, f.secret)
		if err != nil {
			return c.Next()
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err == nil && msg.Message != "" {
			c.Locals(localsKey, msg)
		}
		return c.Next()
	}
}

// Get returns the message delivered with this request, if any.
func Get(c *fiber.Ctx) (Message, bool) {
	msg, ok := c.Locals(localsKey).(Message)
	return msg, ok
}

// Now makes msg visible to the current request only, for pages rendered
// without a redirect.
func Now(c *fiber.Ctx, typ, msg string) {
	c.Locals(localsKey, Message{Type: typ, Message: msg})
}
