package auth

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTOptions configures a JWTGuard.
type JWTOptions struct {
	// Secret is the HS256 signing key. Required.
	Secret string

	// TTL is the token lifetime. Default: 1 hour.
	TTL time.Duration

	// Issuer is set on issued tokens and required on parsed ones.
	// Default: "backpack".
	Issuer string

	// Leeway tolerates clock skew when validating expiry.
	Leeway time.Duration
}

// JWTGuard is the "jwt" driver: the user ID is the subject of an HS256
// bearer token.
type JWTGuard struct {
	name   string
	secret []byte
	ttl    time.Duration
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTGuard creates a jwt guard named name.
func NewJWTGuard(name string, opts JWTOptions) *JWTGuard {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	issuer := opts.Issuer
	if issuer == "" {
		issuer = Name
	}
	return &JWTGuard{
		name:   name,
		secret: []byte(opts.Secret),
		ttl:    ttl,
		issuer: issuer,
		leeway: opts.Leeway,
		now:    time.Now,
	}
}

// Name returns the guard name.
func (g *JWTGuard) Name() string { return g.name }

// Issue returns a signed token for user.
func (g *JWTGuard) Issue(user *User) (string, error) {
	now := g.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(user.ID), 10),
		Issuer:    g.issuer,
		Audience:  jwt.ClaimStrings{g.name},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// Parse validates token and returns the user ID it names.
func (g *JWTGuard) Parse(token string) (uint, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
		jwt.WithAudience(g.name),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(g.leeway),
		jwt.WithTimeFunc(g.now),
	)

	var claims jwt.RegisteredClaims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrUnauthenticated)
	}
	return uint(id), nil
}

// Login issues a token and returns it in the Authorization response header.
func (g *JWTGuard) Login(c *fiber.Ctx, user *User) error {
	token, err := g.Issue(user)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderAuthorization, "Bearer "+token)
	return nil
}

// Logout is a no-op: tokens expire on their own.
func (g *JWTGuard) Logout(c *fiber.Ctx) {}

// ID returns the user ID from the request's bearer token.
func (g *JWTGuard) ID(c *fiber.Ctx) (uint, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return 0, false
	}
	id, err := g.Parse(token)
	if err != nil {
		return 0, false
	}
	return id, true
}
