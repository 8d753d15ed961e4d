package backpack

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/karloscodes/backpack/middleware"
	"github.com/karloscodes/backpack/routing"
	"github.com/karloscodes/backpack/views"
)

// MacroCRUD is the name of the CRUD route macro.
const MacroCRUD = "crud"

var (
	// ErrNoMacro is returned when calling a macro that was never registered.
	ErrNoMacro = errors.New("backpack: macro not registered")

	// ErrRouteNotFound is returned by URL for unknown route names.
	ErrRouteNotFound = errors.New("backpack: route not found")
)

// MacroFunc registers routes for a named resource on the server.
type MacroFunc func(s *Server, name, controller string) ([]routing.Route, error)

// ServerConfig provides server configuration with sensible defaults.
type ServerConfig struct {
	// Core dependencies (required)
	Logger *slog.Logger

	// Optional dependencies handed to HandlerFunc contexts.
	DBManager DBManager
	Container *Container

	// Fiber configuration
	Port           string
	ErrorHandler   fiber.ErrorHandler
	Views          fiber.Views
	Concurrency    int
	ProxyHeader    string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	BodyLimit      int

	// Static assets configuration
	StaticFS        fs.FS  // Embedded filesystem (production)
	StaticDirectory string // Directory (development)
	StaticPrefix    string

	// Middleware configuration
	EnableRequestID       bool
	EnableRecover         bool
	EnableHelmet          bool
	EnableCompress        bool
	EnableSecFetchSite    bool // CSRF protection via Sec-Fetch-Site header
	EnableRequestLogger   bool
	EnableMethodOverride  bool
	ContentSecurityPolicy string

	// Concurrency configuration (SQLite allows a single writer)
	MaxConcurrentReads  int
	MaxConcurrentWrites int
	ConcurrencyTimeout  time.Duration

	// Development renders error details.
	Development bool
}

// DefaultServerConfig returns a configuration with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:         "8080",
		Concurrency:  256 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    16 * 1024 * 1024,

		StaticPrefix: "/assets",

		EnableRequestID:      true,
		EnableRecover:        true,
		EnableHelmet:         true,
		EnableCompress:       true,
		EnableSecFetchSite:   true,
		EnableRequestLogger:  true,
		EnableMethodOverride: true,

		MaxConcurrentReads:  128,
		MaxConcurrentWrites: 1,
		ConcurrencyTimeout:  5 * time.Second,
	}
}

// RouteConfig allows per-route middleware customization.
type RouteConfig struct {
	// CORS enables CORS for this route with the given config.
	CORS *cors.Config

	// WriteConcurrency runs the route under the write limiter.
	WriteConcurrency bool

	// SkipSecFetchSite disables the Sec-Fetch-Site check, for routes
	// that accept cross-origin or machine clients.
	SkipSecFetchSite bool

	// Middleware runs before the handler, after group middleware.
	Middleware []fiber.Handler
}

// Server is a Fiber server with a route group stack and named routes. It
// implements routing.Registrar for the active stack.
//
// Route registration happens at boot and is not meant to run concurrently
// with itself; serving requests is.
type Server struct {
	app     *fiber.App
	cfg     *ServerConfig
	limiter *middleware.ConcurrencyLimiter

	stack  routing.Stack
	macros map[string]MacroFunc

	mu     sync.RWMutex
	routes []routing.Route
	byName map[string]routing.Route
}

// NewServer creates a server with the provided configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("backpack: server config is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("backpack: logger is required")
	}

	fiberCfg := fiber.Config{
		DisableDefaultDate:    true,
		DisableStartupMessage: true,
		Concurrency:           cfg.Concurrency,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
		PassLocalsToViews:     true,
		Views:                 cfg.Views,
		ProxyHeader:           cfg.ProxyHeader,
		TrustedProxies:        cfg.TrustedProxies,
	}
	if len(cfg.TrustedProxies) > 0 {
		fiberCfg.EnableTrustedProxyCheck = true
	}

	if cfg.ErrorHandler != nil {
		fiberCfg.ErrorHandler = cfg.ErrorHandler
	} else {
		fiberCfg.ErrorHandler = DefaultErrorHandler(cfg.Logger, cfg.Development)
	}

	reads, writes := cfg.MaxConcurrentReads, cfg.MaxConcurrentWrites
	if reads <= 0 {
		reads = 128
	}
	if writes <= 0 {
		writes = 1
	}

	s := &Server{
		app:     fiber.New(fiberCfg),
		cfg:     cfg,
		limiter: middleware.NewConcurrencyLimiter(int64(reads), int64(writes), cfg.ConcurrencyTimeout, cfg.Logger),
		macros:  make(map[string]MacroFunc),
		byName:  make(map[string]routing.Route),
	}

	s.setupGlobalMiddleware()
	s.setupStaticAssets()

	return s, nil
}

func (s *Server) setupGlobalMiddleware() {
	if s.cfg.EnableRequestID {
		s.app.Use(requestid.New())
	}
	if s.cfg.EnableRecover {
		s.app.Use(middleware.Recover(s.cfg.Logger))
	}
	if s.cfg.EnableHelmet {
		s.app.Use(middleware.Helmet(s.cfg.ContentSecurityPolicy))
	}
	if s.cfg.EnableCompress {
		s.app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	}
	if s.cfg.EnableRequestLogger {
		s.app.Use(middleware.RequestLogger(s.cfg.Logger))
	}
	if s.cfg.EnableMethodOverride {
		s.app.Use(middleware.MethodOverride())
	}
}

func (s *Server) setupStaticAssets() {
	prefix := s.cfg.StaticPrefix
	if prefix == "" {
		prefix = "/assets"
	}

	switch {
	case s.cfg.StaticFS != nil:
		s.app.Use(prefix, filesystem.New(filesystem.Config{
			Root:   http.FS(s.cfg.StaticFS),
			MaxAge: int((24 * time.Hour).Seconds()),
		}))
	case s.cfg.StaticDirectory != "":
		s.app.Static(prefix, s.cfg.StaticDirectory, fiber.Static{
			Compress:      true,
			ByteRange:     true,
			CacheDuration: 24 * time.Hour,
		})
	}
}

// Use adds global middleware. Call it before registering routes.
func (s *Server) Use(handlers ...fiber.Handler) {
	for _, h := range handlers {
		s.app.Use(h)
	}
}

// Group runs fn with g pushed on the group stack.
func (s *Server) Group(g routing.Group, fn func(s *Server)) {
	prev := s.stack
	s.stack = s.stack.Push(g)
	defer func() { s.stack = prev }()
	fn(s)
}

// Stack returns the active group stack.
func (s *Server) Stack() routing.Stack {
	return s.stack
}

// PathPrefix returns the joined path prefix of the active groups.
func (s *Server) PathPrefix() string {
	return s.stack.PathPrefix()
}

// Add registers handlers under the active groups and names the route.
// The name is used as given; CRUD controllers pass names that already
// carry the group prefix.
func (s *Server) Add(method, path, name string, handlers ...fiber.Handler) routing.Route {
	return s.add(method, path, name, nil, handlers)
}

func (s *Server) add(method, path, name string, rc *RouteConfig, handlers []fiber.Handler) routing.Route {
	full := routing.JoinPath(s.stack.PathPrefix(), path)

	chain := make([]fiber.Handler, 0, len(handlers)+4)
	if rc != nil && rc.CORS != nil {
		chain = append(chain, cors.New(*rc.CORS))
	}
	if s.cfg.EnableSecFetchSite && (rc == nil || !rc.SkipSecFetchSite) {
		chain = append(chain, middleware.SecFetchSite())
	}
	chain = append(chain, s.stack.Middleware()...)
	if rc != nil {
		if rc.WriteConcurrency {
			chain = append(chain, middleware.WriteConcurrencyLimitMiddleware(s.limiter))
		}
		chain = append(chain, rc.Middleware...)
	}
	chain = append(chain, handlers...)

	router := s.app.Add(method, full, chain...)
	if name != "" {
		router.Name(name)
	}

	route := routing.Route{Method: method, Path: full, Name: name}
	s.mu.Lock()
	s.routes = append(s.routes, route)
	if name != "" {
		s.byName[name] = route
	}
	s.mu.Unlock()
	return route
}

// Handle registers a HandlerFunc. The name gets the active group's name
// prefix, as for CRUD resources.
func (s *Server) Handle(method, path, name string, handler HandlerFunc, cfg ...*RouteConfig) routing.Route {
	var rc *RouteConfig
	if len(cfg) > 0 {
		rc = cfg[0]
	}
	if name != "" {
		name = s.stack.RouteName(name)
	}
	return s.add(method, path, name, rc, []fiber.Handler{s.wrapHandler(handler)})
}

// Get registers a GET route.
func (s *Server) Get(path, name string, handler HandlerFunc, cfg ...*RouteConfig) routing.Route {
	return s.Handle(fiber.MethodGet, path, name, handler, cfg...)
}

// Post registers a POST route.
func (s *Server) Post(path, name string, handler HandlerFunc, cfg ...*RouteConfig) routing.Route {
	return s.Handle(fiber.MethodPost, path, name, handler, cfg...)
}

// Put registers a PUT route.
func (s *Server) Put(path, name string, handler HandlerFunc, cfg ...*RouteConfig) routing.Route {
	return s.Handle(fiber.MethodPut, path, name, handler, cfg...)
}

// Delete registers a DELETE route.
func (s *Server) Delete(path, name string, handler HandlerFunc, cfg ...*RouteConfig) routing.Route {
	return s.Handle(fiber.MethodDelete, path, name, handler, cfg...)
}

func (s *Server) wrapHandler(handler HandlerFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return handler(&Context{
			Ctx:       c,
			Logger:    s.cfg.Logger,
			DBManager: s.cfg.DBManager,
			Container: s.cfg.Container,
		})
	}
}

// Macro registers fn under name, replacing any previous macro.
func (s *Server) Macro(name string, fn MacroFunc) {
	s.macros[name] = fn
}

// HasMacro reports whether a macro is registered under name.
func (s *Server) HasMacro(name string) bool {
	_, ok := s.macros[name]
	return ok
}

// CRUD mounts the routes of a CRUD resource through the crud macro.
// controller is resolved after qualification with the innermost group's
// namespace.
func (s *Server) CRUD(name, controller string) ([]routing.Route, error) {
	fn, ok := s.macros[MacroCRUD]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoMacro, MacroCRUD)
	}
	return fn(s, name, controller)
}

// MustCRUD is like CRUD but panics on error. Use it at boot.
func (s *Server) MustCRUD(name, controller string) []routing.Route {
	routes, err := s.CRUD(name, controller)
	if err != nil {
		panic(err)
	}
	return routes
}

// crudMacro resolves controllers through registry.
func crudMacro(registry *routing.Registry) MacroFunc {
	return func(s *Server, name, controller string) ([]routing.Route, error) {
		return routing.Mount(s, registry, s.stack, name, controller)
	}
}

// Routes returns the registered routes in registration order.
func (s *Server) Routes() []routing.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]routing.Route(nil), s.routes...)
}

// URL builds the path of the named route, filling :params in order.
func (s *Server) URL(name string, params ...any) (string, error) {
	s.mu.RLock()
	route, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRouteNotFound, name)
	}
	return views.FillRoute(route.Path, params...), nil
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Limiter returns the concurrency limiter.
func (s *Server) Limiter() *middleware.ConcurrencyLimiter {
	return s.limiter
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.cfg.Logger
}

// Start listens on the configured port. It blocks until shutdown.
func (s *Server) Start() error {
	port := s.cfg.Port
	if port == "" {
		port = "8080"
	}
	s.cfg.Logger.Info("server started and ready to accept requests", "port", port, "routes", len(s.Routes()))
	return s.app.Listen(":" + port)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.app.Shutdown()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
