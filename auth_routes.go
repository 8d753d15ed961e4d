package backpack

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/backpack/auth"
	"github.com/karloscodes/backpack/cache"
	"github.com/karloscodes/backpack/middleware"
	"github.com/karloscodes/backpack/pkg/flash"
	"github.com/karloscodes/backpack/routing"
)

// MinPasswordLength is the shortest password accepted on reset.
const MinPasswordLength = 8

// Route names of the admin auth pages.
const (
	RouteLogin             = "backpack.auth.login"
	RouteLogout            = "backpack.auth.logout"
	RoutePasswordEmail     = "backpack.auth.password.email"
	RoutePasswordReset     = "backpack.auth.password.reset"
	RoutePasswordResetForm = "backpack.auth.password.reset.token"
	RouteDashboard         = "backpack.dashboard"
)

type credentials struct {
	Email                string `json:"email" form:"email"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
	Token                string `json:"token" form:"token"`
}

func (p *Provider) mountAuthRoutes() {
	throttled := &RouteConfig{}
	if limit := p.opts.LoginRateLimit; limit >= 0 {
		if limit == 0 {
			limit = 5
		}
		throttled.Middleware = []fiber.Handler{middleware.RateLimiter(
			middleware.WithMax(limit),
			middleware.WithDuration(time.Minute),
			middleware.WithStorage(cache.NewFiberStorage(p.opts.Cache)),
		)}
	}

	p.server.Group(routing.Group{Prefix: p.cfg.RoutePrefix(), Name: routing.N("backpack.auth.")}, func(s *Server) {
		s.Get("/login", "login", p.showLogin)
		s.Post("/login", "", p.login, throttled)
		s.Post("/logout", "logout", p.logout)

		s.Get("/password/reset", "password.reset", p.showLinkRequest)
		s.Post("/password/email", "password.email", p.sendResetLink, throttled)
		s.Get("/password/reset/:token", "password.reset.token", p.showResetForm)
		s.Post("/password/reset", "", p.resetPassword, throttled)
	})
}

func (p *Provider) mountDashboardRoutes() {
	p.server.Group(routing.Group{
		Prefix:     p.cfg.RoutePrefix(),
		Name:       routing.N("backpack."),
		Middleware: []fiber.Handler{p.RequireAdmin()},
	}, func(s *Server) {
		s.Get("/dashboard", "dashboard", p.dashboard)
		s.Get("/", "", func(c *Context) error {
			return c.Redirect(p.url("dashboard"))
		})
	})
}

func (p *Provider) guard() string { return p.cfg.Base().Guard }

func (p *Provider) showLogin(c *Context) error {
	if _, err := p.auth.User(c.Ctx, p.guard()); err == nil {
		return c.Redirect(p.url("dashboard"))
	}
	return p.render(c.Ctx, "backpack::auth.login", LayoutPlain, fiber.Map{
		"Title": p.trans("backpack::base.login"),
		"Email": "",
	})
}

func (p *Provider) login(c *Context) error {
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid login payload")
	}
	in.Email = strings.TrimSpace(in.Email)

	user, err := p.auth.Attempt(c.Ctx, p.guard(), in.Email, in.Password)
	p.metrics.AuthAttempt(p.guard(), err)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.Logger.Info("admin login failed", "email", in.Email, "ip", c.IP())
		return p.formError(c, "backpack::auth.login", fiber.Map{
			"Title": p.trans("backpack::base.login"),
			"Email": in.Email,
		}, map[string]string{"email": p.trans("backpack::base.invalid_credentials")})
	}
	if err != nil {
		return err
	}

	c.Logger.Info("admin logged in", "user_id", user.ID)
	if wantsJSON(c.Ctx) {
		return c.JSON(fiber.Map{"data": user})
	}
	return c.Redirect(p.url("dashboard"), fiber.StatusSeeOther)
}

func (p *Provider) logout(c *Context) error {
	if err := p.auth.Logout(c.Ctx, p.guard()); err != nil {
		return err
	}
	if wantsJSON(c.Ctx) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.Redirect(p.url("login"), fiber.StatusSeeOther)
}

func (p *Provider) showLinkRequest(c *Context) error {
	binding := fiber.Map{
		"Title": p.trans("backpack::base.reset_password"),
		"Email": c.Query("email"),
	}
	if msg, ok := flash.Get(c.Ctx); ok && msg.Type == flash.TypeSuccess {
		binding["Status"] = msg.Message
	}
	return p.render(c.Ctx, "backpack::auth.passwords.email", LayoutPlain, binding)
}

// sendResetLink answers the same way whether or not the email belongs to
// a user, so the form cannot be used to probe for accounts.
func (p *Provider) sendResetLink(c *Context) error {
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid reset payload")
	}
	in.Email = strings.TrimSpace(in.Email)

	broker, err := p.auth.Broker(p.cfg.Base().Passwords)
	if err != nil {
		return err
	}

	err = broker.SendResetLink(c.UserContext(), in.Email)
	switch {
	case err == nil:
		p.metrics.PasswordReset(broker.Name(), "requested")
	case errors.Is(err, auth.ErrUserNotFound):
		p.metrics.PasswordReset(broker.Name(), "unknown")
	case errors.Is(err, auth.ErrThrottled):
		p.metrics.PasswordReset(broker.Name(), "throttled")
		return p.formError(c, "backpack::auth.passwords.email", fiber.Map{
			"Title": p.trans("backpack::base.reset_password"),
			"Email": in.Email,
		}, map[string]string{"email": p.trans("backpack::base.reset_throttled")})
	default:
		return err
	}

	status := p.trans("backpack::base.reset_link_sent")
	if wantsJSON(c.Ctx) {
		return c.JSON(fiber.Map{"status": status})
	}
	p.flasher.Success(c.Ctx, status)
	return c.Redirect(p.url("password/reset"), fiber.StatusSeeOther)
}

func (p *Provider) showResetForm(c *Context) error {
	return p.render(c.Ctx, "backpack::auth.passwords.reset", LayoutPlain, fiber.Map{
		"Title": p.trans("backpack::base.reset_password"),
		"Token": c.Params("token"),
		"Email": c.Query("email"),
	})
}

func (p *Provider) resetPassword(c *Context) error {
	var in credentials
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid reset payload")
	}
	in.Email = strings.TrimSpace(in.Email)

	binding := fiber.Map{
		"Title": p.trans("backpack::base.reset_password"),
		"Token": in.Token,
		"Email": in.Email,
	}

	errs := map[string]string{}
	switch {
	case len(in.Password) < MinPasswordLength:
		errs["password"] = p.trans("backpack::base.password_min", "min", strconv.Itoa(MinPasswordLength))
	case in.Password != in.PasswordConfirmation:
		errs["password"] = p.trans("backpack::base.password_confirmation")
	}
	if len(errs) > 0 {
		return p.formError(c, "backpack::auth.passwords.reset", binding, errs)
	}

	broker, err := p.auth.Broker(p.cfg.Base().Passwords)
	if err != nil {
		return err
	}

	user, err := broker.Reset(c.UserContext(), in.Email, in.Token, in.Password)
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUserNotFound) {
		p.metrics.PasswordReset(broker.Name(), "rejected")
		return p.formError(c, "backpack::auth.passwords.reset", binding,
			map[string]string{"email": p.trans("backpack::base.invalid_token")})
	}
	if err != nil {
		return err
	}
	p.metrics.PasswordReset(broker.Name(), "completed")

	guard, err := p.auth.Guard(p.guard())
	if err != nil {
		return err
	}
	if err := guard.Login(c.Ctx, user); err != nil {
		return err
	}
	c.Logger.Info("admin password reset", "user_id", user.ID)

	done := p.trans("backpack::base.password_reset_done")
	if wantsJSON(c.Ctx) {
		return c.JSON(fiber.Map{"status": done})
	}
	p.flasher.Success(c.Ctx, done)
	return c.Redirect(p.url("dashboard"), fiber.StatusSeeOther)
}

func (p *Provider) dashboard(c *Context) error {
	widgets := p.Widgets().All()
	if wantsJSON(c.Ctx) {
		return c.JSON(fiber.Map{"widgets": widgets})
	}
	return p.render(c.Ctx, "backpack::dashboard", LayoutApp, fiber.Map{
		"Title":   p.trans("backpack::base.dashboard"),
		"Widgets": widgets,
	})
}

// formError answers 422 with field errors: JSON for API clients, the form
// page again otherwise.
func (p *Provider) formError(c *Context, view string, binding fiber.Map, errs map[string]string) error {
	c.Status(fiber.StatusUnprocessableEntity)
	if wantsJSON(c.Ctx) {
		return c.JSON(fiber.Map{"errors": errs})
	}
	binding["Errors"] = errs
	return p.render(c.Ctx, view, LayoutPlain, binding)
}

func wantsJSON(c *fiber.Ctx) bool {
	return c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON
}
