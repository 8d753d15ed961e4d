package auth

import (
	"github.com/gofiber/fiber/v2"
)

// userLocalsKey is where Require stores the authenticated user.
const userLocalsKey = "backpack_user"

// Guard authenticates requests.
type Guard interface {
	// Name is the guard's config key.
	Name() string
	// ID returns the authenticated user ID.
	ID(c *fiber.Ctx) (uint, bool)
	// Login persists the user's identity on the response.
	Login(c *fiber.Ctx, user *User) error
	// Logout forgets the identity.
	Logout(c *fiber.Ctx)
}

// CurrentUser returns the user stored by Require.
func CurrentUser(c *fiber.Ctx) (*User, bool) {
	user, ok := c.Locals(userLocalsKey).(*User)
	return user, ok && user != nil
}

// SetCurrentUser stores user for the rest of the request.
func SetCurrentUser(c *fiber.Ctx, user *User) {
	c.Locals(userLocalsKey, user)
}
