package backpack

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/karloscodes/backpack/auth"
)

// Context provides request-scoped access to application dependencies.
// It embeds fiber.Ctx, so every Fiber request and response method is
// available directly.
type Context struct {
	*fiber.Ctx
	Logger    Logger
	DBManager DBManager
	Container *Container
	db        *gorm.DB
}

// DB returns a database session bound to the request context. The session
// is cached for the rest of the request.
// Panics if no connection is available (caught by the recover middleware).
func (ctx *Context) DB() *gorm.DB {
	if ctx.db != nil {
		return ctx.db
	}
	if ctx.DBManager == nil {
		panic("backpack: no database manager configured")
	}

	db := ctx.DBManager.GetConnection()
	if db == nil {
		if ctx.Logger != nil {
			ctx.Logger.Error("failed to get database connection")
		}
		panic("backpack: database connection failed")
	}

	ctx.db = db.WithContext(ctx.UserContext())
	return ctx.db
}

// User returns the admin user authenticated earlier in the chain.
func (ctx *Context) User() (*auth.User, bool) {
	return auth.CurrentUser(ctx.Ctx)
}

// HandlerFunc is the signature for backpack request handlers.
type HandlerFunc func(*Context) error
