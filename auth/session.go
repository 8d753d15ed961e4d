package auth

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/backpack/crypto"
)

// SessionOptions configures a SessionGuard.
type SessionOptions struct {
	// CookieName is the name of the session cookie. Default: "<guard>_session".
	CookieName string

	// Secret is the HMAC secret for signing session tokens. Required.
	Secret string

	// TTL is the session duration. Default: 24 hours.
	TTL time.Duration

	// Secure sets the Secure flag on cookies.
	Secure bool
}

// SessionGuard is the "session" driver: the user ID lives in an HMAC-signed
// cookie.
type SessionGuard struct {
	name       string
	cookieName string
	secret     string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

type sessionData struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewSessionGuard creates a session guard named name.
func NewSessionGuard(name string, opts SessionOptions) *SessionGuard {
	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = name + "_session"
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &SessionGuard{
		name:       name,
		cookieName: cookieName,
		secret:     opts.Secret,
		ttl:        ttl,
		secure:     opts.Secure,
		now:        time.Now,
	}
}

// Name returns the guard name.
func (g *SessionGuard) Name() string { return g.name }

// CookieName returns the session cookie name.
func (g *SessionGuard) CookieName() string { return g.cookieName }

// Login sets the session cookie for user.
func (g *SessionGuard) Login(c *fiber.Ctx, user *User) error {
	data := sessionData{
		UserID:    strconv.FormatUint(uint64(user.ID), 10),
		ExpiresAt: g.now().Add(g.ttl),
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     g.cookieName,
		Value:    crypto.Sign(payload, g.secret),
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		Expires:  data.ExpiresAt,
		Secure:   g.secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return nil
}

// Logout expires the session cookie.
func (g *SessionGuard) Logout(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  g.now().Add(-24 * time.Hour),
		Secure:   g.secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// ID returns the user ID from a valid, unexpired session cookie.
func (g *SessionGuard) ID(c *fiber.Ctx) (uint, bool) {
	token := c.Cookies(g.cookieName)
	if token == "" {
		return 0, false
	}

	payload, err := crypto.Unsign(token, g.secret)
	if err != nil {
		return 0, false
	}

	var data sessionData
	if err := json.Unmarshal(payload, &data); err != nil {
		return 0, false
	}

	if g.now().After(data.ExpiresAt) {
		return 0, false
	}

	id, err := strconv.ParseUint(data.UserID, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
