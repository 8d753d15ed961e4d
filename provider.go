package backpack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/karloscodes/backpack/auth"
	"github.com/karloscodes/backpack/cache"
	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/crud"
	"github.com/karloscodes/backpack/inertia"
	"github.com/karloscodes/backpack/lang"
	"github.com/karloscodes/backpack/metrics"
	"github.com/karloscodes/backpack/middleware"
	"github.com/karloscodes/backpack/pkg/flash"
	"github.com/karloscodes/backpack/routing"
	"github.com/karloscodes/backpack/storage"
	"github.com/karloscodes/backpack/views"
)

// Layouts wrapping the stock pages.
const (
	LayoutApp   = "backpack::layouts.app"
	LayoutPlain = "backpack::layouts.plain"
)

// Container binding names for the provider's shared services.
const (
	BindingConfig     = "config"
	BindingAuth       = "auth"
	BindingTranslator = "translator"
	BindingViews      = "views"
	BindingStorage    = "filesystems"
	BindingMetrics    = "metrics"
)

// projectNameKey exposes the project name to views.
const projectNameKey = "ProjectName"

var (
	// ErrNotRegistered is returned by Boot before Register.
	ErrNotRegistered = errors.New("backpack: provider not registered")

	// ErrAlreadyRegistered is returned when Register runs twice.
	ErrAlreadyRegistered = errors.New("backpack: provider already registered")

	// ErrAlreadyBooted is returned when Boot runs twice.
	ErrAlreadyBooted = errors.New("backpack: provider already booted")
)

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	// DB provides connections for the auth provider and reset broker.
	// Required.
	DB DBManager

	Logger *slog.Logger

	// Container receives the bindings. Default: a new container.
	Container *Container

	// Controllers resolves CRUD controller identifiers. Default: empty.
	Controllers *routing.Registry

	// Metrics collects counters. Default: metrics.New().
	Metrics *metrics.Metrics

	// Inertia renders CRUD pages for Inertia requests when set.
	Inertia *inertia.Responder

	// Cache backs reset throttling and the login rate limiter.
	// Default: an in-memory store.
	Cache cache.Store

	// Notifier delivers password reset tokens. Default: log the reset URL.
	Notifier auth.Notifier

	// LoginRateLimit caps login and reset-link attempts per client and
	// minute. Zero means 5; negative disables the limiter.
	LoginRateLimit int
}

// Provider registers the admin panel on a server in two phases.
// Register binds the container singletons and the crud macro; Boot loads
// views and translations and mounts the auth and dashboard routes.
type Provider struct {
	cfg  *config.Assembled
	opts ProviderOptions

	container  *Container
	registry   *routing.Registry
	finder     *views.Finder
	engine     *views.Engine
	translator *lang.Translator
	auth       *auth.Manager
	flasher    *flash.Flasher
	disks      *storage.Manager
	metrics    *metrics.Metrics
	logger     *slog.Logger

	server *Server
	booted bool
}

// NewProvider creates a provider over the assembled configuration.
func NewProvider(cfg *config.Assembled, opts ProviderOptions) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backpack: assembled config is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("backpack: database manager is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Container == nil {
		opts.Container = NewContainer()
	}
	if opts.Controllers == nil {
		opts.Controllers = routing.NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryStore()
	}

	app := cfg.App()
	base := cfg.Base()

	p := &Provider{
		cfg:        cfg,
		opts:       opts,
		container:  opts.Container,
		registry:   opts.Controllers,
		finder:     views.NewFinder(),
		translator: lang.New(base.Locale, base.FallbackLocale),
		flasher:    flash.New(app.SessionSecret, app.IsProduction()),
		disks:      storage.NewManager(cfg.Filesystems()),
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}

	p.engine = views.NewEngine(p.finder).
		AddFuncMap(views.Helpers{
			RoutePrefix: cfg.RoutePrefix(),
			Guard:       base.Guard,
			Translate:   p.translator.Get,
		}.FuncMap()).
		Reload(app.IsDevelopment())

	if opts.Notifier == nil {
		opts.Notifier = p.logResetLink
		p.opts.Notifier = opts.Notifier
	}

	p.auth = auth.NewManager(cfg.Auth(), auth.ManagerOptions{
		DB:         opts.DB,
		Store:      opts.Cache,
		Secret:     app.SessionSecret,
		SessionTTL: time.Duration(app.GetSessionTimeout()) * time.Second,
		TokenTTL:   time.Duration(app.GetSessionTimeout()) * time.Second,
		Secure:     app.IsProduction(),
		Notifier:   opts.Notifier,
		Logger:     opts.Logger,
	})

	return p, nil
}

// Views returns the view engine. Pass it to ServerConfig.Views.
func (p *Provider) Views() *views.Engine { return p.engine }

// Translator returns the translator.
func (p *Provider) Translator() *lang.Translator { return p.translator }

// Auth returns the auth manager.
func (p *Provider) Auth() *auth.Manager { return p.auth }

// Container returns the service container.
func (p *Provider) Container() *Container { return p.container }

// Controllers returns the controller registry the crud macro resolves from.
func (p *Provider) Controllers() *routing.Registry { return p.registry }

// Config returns the assembled configuration.
func (p *Provider) Config() *config.Assembled { return p.cfg }

// Metrics returns the metrics collectors.
func (p *Provider) Metrics() *metrics.Metrics { return p.metrics }

// Storage returns the filesystem disks.
func (p *Provider) Storage() *storage.Manager { return p.disks }

// Register binds the crud and widgets singletons and the shared services,
// adds the request middleware and installs the crud macro unless the
// server already has one.
func (p *Provider) Register(s *Server) error {
	if p.server != nil {
		return ErrAlreadyRegistered
	}
	p.server = s

	p.container.Singleton(BindingCrud, func(*Container) (any, error) {
		return crud.NewPanel(p.cfg.Crud()), nil
	})
	p.container.Singleton(BindingWidgets, func(*Container) (any, error) {
		return crud.NewWidgets(), nil
	})
	p.container.Instance(BindingConfig, p.cfg)
	p.container.Instance(BindingAuth, p.auth)
	p.container.Instance(BindingTranslator, p.translator)
	p.container.Instance(BindingViews, p.engine)
	p.container.Instance(BindingStorage, p.disks)
	p.container.Instance(BindingMetrics, p.metrics)

	projectName := p.cfg.Base().ProjectName
	s.Use(
		p.metrics.Middleware(),
		p.flasher.Middleware(),
		func(c *fiber.Ctx) error {
			c.Locals(projectNameKey, projectName)
			return c.Next()
		},
	)
	if p.opts.Inertia != nil {
		s.Use(p.opts.Inertia.Middleware())
	}

	if !s.HasMacro(MacroCRUD) {
		s.Macro(MacroCRUD, crudMacro(p.registry))
	}
	return nil
}

// Boot loads views and translations, published overrides first, then
// mounts the auth, dashboard and metrics routes.
func (p *Provider) Boot() error {
	if p.server == nil {
		return ErrNotRegistered
	}
	if p.booted {
		return ErrAlreadyBooted
	}

	resources := p.resourcesPath()
	views.LoadWithFallbacks(p.finder, resources)
	lang.LoadWithFallbacks(p.translator, resources)
	if err := p.engine.Load(); err != nil {
		return fmt.Errorf("backpack: boot: %w", err)
	}

	base := p.cfg.Base()
	if base.SetupAuthRoutes {
		p.mountAuthRoutes()
	}
	if base.SetupDashboardRoutes {
		p.mountDashboardRoutes()
	}
	p.server.Get("/metrics", "backpack.metrics", func(c *Context) error {
		return p.metrics.Handler()(c.Ctx)
	}, &RouteConfig{SkipSecFetchSite: true})
	p.server.Get("/_health", "backpack.health", p.health, &RouteConfig{SkipSecFetchSite: true})

	p.booted = true
	p.logger.Info("backpack booted",
		"prefix", p.cfg.RoutePrefix(),
		"guard", base.Guard,
		"view_namespaces", p.finder.Namespaces(),
	)
	return nil
}

// Migrate creates the users table and the password reset tables.
func (p *Provider) Migrate(ctx context.Context) error {
	db := p.opts.DB.GetConnection()
	if db == nil {
		return fmt.Errorf("backpack: migrate: no database connection")
	}
	if err := db.WithContext(ctx).AutoMigrate(&auth.User{}); err != nil {
		return fmt.Errorf("backpack: migrate users: %w", err)
	}
	brokers, err := p.auth.Brokers()
	if err != nil {
		return fmt.Errorf("backpack: migrate: %w", err)
	}
	for _, b := range brokers {
		if err := b.Migrate(ctx); err != nil {
			return fmt.Errorf("backpack: migrate %s: %w", b.Table(), err)
		}
	}
	return nil
}

// RequireAdmin rejects requests without an admin user on the backpack
// guard. Browsers are sent to the login page.
func (p *Provider) RequireAdmin() fiber.Handler {
	return p.auth.Require(p.cfg.Base().Guard, p.url("login"))
}

// Panel returns a copy of the container's crud panel for one controller.
func (p *Provider) Panel() *crud.Panel {
	return MustResolve[*crud.Panel](p.container, BindingCrud).Clone()
}

// Widgets returns the shared dashboard widgets.
func (p *Provider) Widgets() *crud.Widgets {
	return MustResolve[*crud.Widgets](p.container, BindingWidgets)
}

// CrudDeps returns the dependencies CRUD controllers need, guarded by
// RequireAdmin.
func (p *Provider) CrudDeps() crud.Deps {
	var limiter *middleware.ConcurrencyLimiter
	if p.server != nil {
		limiter = p.server.Limiter()
	}
	return crud.Deps{
		Layout:     LayoutApp,
		Middleware: []fiber.Handler{p.RequireAdmin()},
		Inertia:    p.opts.Inertia,
		Limiter:    limiter,
		Metrics:    p.metrics,
		Storage:    p.disks,
		Flash:      p.flasher,
		Translate:  p.translator.Get,
		Logger:     p.logger,
	}
}

// Admin runs fn inside a group under the admin route prefix.
func (p *Provider) Admin(fn func(s *Server)) {
	p.server.Group(routing.Group{Prefix: p.cfg.RoutePrefix()}, fn)
}

func (p *Provider) resourcesPath() string {
	app := p.cfg.App()
	if filepath.IsAbs(app.ResourcesPath) {
		return app.ResourcesPath
	}
	return filepath.Join(app.BasePath, app.ResourcesPath)
}

// url builds an absolute admin path.
func (p *Provider) url(path string) string {
	return views.URL(p.cfg.RoutePrefix(), path)
}

func (p *Provider) health(c *Context) error {
	err := errors.New("no database connection")
	if db := p.opts.DB.GetConnection(); db != nil {
		var sqlDB interface{ PingContext(context.Context) error }
		if sqlDB, err = db.DB(); err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
	}
	if err != nil {
		c.Logger.Error("health check failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (p *Provider) logResetLink(_ context.Context, user *auth.User, token string) error {
	p.logger.Info("password reset link issued",
		"email", user.Email,
		"url", p.url("password/reset/"+token)+"?email="+user.Email,
	)
	return nil
}

// render renders an HTML page with the flash message of the request.
func (p *Provider) render(c *fiber.Ctx, view, layout string, binding fiber.Map) error {
	if msg, ok := flash.Get(c); ok {
		binding["Flash"] = msg
	}
	if _, ok := binding["Errors"]; !ok {
		binding["Errors"] = map[string]string{}
	}
	return c.Render(view, binding, layout)
}

func (p *Provider) trans(key string, replace ...string) string {
	pairs := make(map[string]string, len(replace)/2)
	for i := 0; i+1 < len(replace); i += 2 {
		pairs[replace[i]] = replace[i+1]
	}
	return p.translator.Get(key, pairs)
}
