package backpack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karloscodes/backpack/auth"
	"github.com/karloscodes/backpack/cache"
	"github.com/karloscodes/backpack/config"
	"github.com/karloscodes/backpack/database"
	"github.com/karloscodes/backpack/inertia"
	"github.com/karloscodes/backpack/postgres"
	"github.com/karloscodes/backpack/routing"
	"github.com/karloscodes/backpack/sqlite"
)

// DefaultJobInterval is how often background processors run.
const DefaultJobInterval = 15 * time.Minute

// Option configures NewApplication.
type Option func(*appOptions)

type appOptions struct {
	controllers  *routing.Registry
	routes       func(*Application) error
	models       []any
	configOpts   []config.Option
	serverConfig func(*ServerConfig)
	inertia      *inertia.Responder
	notifier     auth.Notifier
	jobInterval  time.Duration
	processors   []Processor
}

// WithControllers sets the registry the crud macro resolves from.
func WithControllers(r *routing.Registry) Option {
	return func(o *appOptions) { o.controllers = r }
}

// WithRoutes mounts application routes after the provider has booted.
func WithRoutes(fn func(*Application) error) Option {
	return func(o *appOptions) { o.routes = fn }
}

// WithModels registers models for Migrate.
func WithModels(models ...any) Option {
	return func(o *appOptions) { o.models = append(o.models, models...) }
}

// WithConfig passes options to config.Assemble.
func WithConfig(opts ...config.Option) Option {
	return func(o *appOptions) { o.configOpts = append(o.configOpts, opts...) }
}

// WithServerConfig adjusts the server configuration before the server is
// built.
func WithServerConfig(fn func(*ServerConfig)) Option {
	return func(o *appOptions) { o.serverConfig = fn }
}

// WithInertia renders CRUD pages through r for Inertia requests.
func WithInertia(r *inertia.Responder) Option {
	return func(o *appOptions) { o.inertia = r }
}

// WithNotifier delivers password reset tokens, typically by mail.
func WithNotifier(n auth.Notifier) Option {
	return func(o *appOptions) { o.notifier = n }
}

// WithJobs adds background processors and sets their interval.
func WithJobs(interval time.Duration, processors ...Processor) Option {
	return func(o *appOptions) {
		o.jobInterval = interval
		o.processors = append(o.processors, processors...)
	}
}

// Application wires configuration, logging, database, server and the
// admin provider, and manages their lifecycle.
type Application struct {
	Config   *config.Assembled
	Logger   *slog.Logger
	DB       *database.Manager
	Server   *Server
	Provider *Provider
	Jobs     *JobDispatcher

	models []any
}

// NewApplication loads configuration for appName from the environment and
// builds the application.
func NewApplication(appName string, opts ...Option) (*Application, error) {
	cfg, err := config.Load(appName)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// New builds the application from cfg: it connects the database, creates
// the server and runs the provider's Register and Boot phases.
func New(cfg *config.Config, opts ...Option) (*Application, error) {
	o := appOptions{jobInterval: DefaultJobInterval}
	for _, opt := range opts {
		opt(&o)
	}

	assembled, err := config.Assemble(cfg, o.configOpts...)
	if err != nil {
		return nil, err
	}

	logger := NewLogger(LogConfigFrom(cfg))

	db := database.NewManager(DriverFor(cfg), DatabaseConfig(cfg), logger)
	if _, err := db.Connect(); err != nil {
		return nil, err
	}

	store, err := CacheStore(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	provider, err := NewProvider(assembled, ProviderOptions{
		DB:          db,
		Logger:      logger,
		Controllers: o.controllers,
		Inertia:     o.inertia,
		Notifier:    o.notifier,
		Cache:       store,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	srvCfg := DefaultServerConfig()
	srvCfg.Logger = logger
	srvCfg.DBManager = db
	srvCfg.Container = provider.Container()
	srvCfg.Views = provider.Views()
	srvCfg.Port = cfg.GetPort()
	srvCfg.StaticDirectory = cfg.GetPublicDirectory()
	srvCfg.StaticPrefix = cfg.GetAssetsPrefix()
	srvCfg.Development = cfg.IsDevelopment()
	srvCfg.MaxConcurrentWrites = cfg.MaxConcurrentWrites
	if o.serverConfig != nil {
		o.serverConfig(srvCfg)
	}

	server, err := NewServer(srvCfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := provider.Register(server); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := provider.Boot(); err != nil {
		_ = db.Close()
		return nil, err
	}

	processors := append([]Processor{ResetPruner{Auth: provider.Auth()}}, o.processors...)

	app := &Application{
		Config:   assembled,
		Logger:   logger,
		DB:       db,
		Server:   server,
		Provider: provider,
		Jobs:     NewJobDispatcher(logger, db, o.jobInterval, processors...),
		models:   o.models,
	}

	if o.routes != nil {
		if err := o.routes(app); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("backpack: mount routes: %w", err)
		}
	}
	return app, nil
}

// DriverFor returns the database driver named by the configuration.
func DriverFor(cfg *config.Config) database.Driver {
	if cfg.DatabaseDriver == config.DriverPostgres {
		return postgres.NewDriver()
	}
	return sqlite.NewDriver()
}

// CacheStore returns the throttle store named by the configuration.
func CacheStore(cfg *config.Config, db DBManager) (cache.Store, error) {
	if cfg.CacheDriver == config.CacheDatabase {
		return cache.NewDatabaseStore(db)
	}
	return cache.NewMemoryStore(), nil
}

// DatabaseConfig maps the process configuration to connection settings.
func DatabaseConfig(cfg *config.Config) *database.Config {
	dc := database.DefaultConfig(cfg.DatabaseDSN())
	dc.MaxOpenConns = cfg.GetMaxOpenConns()
	dc.MaxIdleConns = cfg.GetMaxIdleConns()
	dc.LogQueries = cfg.Debug
	return dc
}

// Migrate creates the admin tables and the registered models' tables.
func (a *Application) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, a.Provider, NewAutoMigrator(a.DB, a.models...))
}

// Start starts the background jobs and the HTTP server. It blocks until
// the server stops.
func (a *Application) Start() error {
	a.Jobs.Start()
	return a.Server.Start()
}

// Shutdown stops the server, the jobs and the database, in that order.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)
	a.Jobs.Stop()
	return errors.Join(err, a.DB.Close())
}

// Run starts the application and waits for SIGINT or SIGTERM.
// It shuts down gracefully within 10 seconds.
func (a *Application) Run() error {
	return a.RunWithTimeout(10 * time.Second)
}

// RunWithTimeout is Run with a custom shutdown timeout.
func (a *Application) RunWithTimeout(timeout time.Duration) error {
	serverErr := make(chan error, 1)
	go func() { serverErr <- a.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serverErr:
		a.Jobs.Stop()
		return errors.Join(err, a.DB.Close())
	case <-stop:
	}

	a.Logger.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		a.Logger.Error("graceful shutdown failed", "error", err)
		return err
	}

	a.Logger.Info("shutdown complete")
	return nil
}
