package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/backpack/cache"
)

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// DB provides connections for gorm providers and brokers. Required.
	DB Connector

	// Store backs reset throttling. Default: a new in-memory store.
	Store cache.Store

	// Secret signs session cookies and jwt tokens. Required.
	Secret string

	// SessionTTL is the session cookie lifetime.
	SessionTTL time.Duration

	// TokenTTL is the jwt lifetime.
	TokenTTL time.Duration

	// Secure sets the Secure flag on session cookies.
	Secure bool

	// Notifier delivers password reset tokens.
	Notifier Notifier

	Logger Logger
}

// Manager builds guards, providers and brokers from a Config on first use.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	opts ManagerOptions

	mu        sync.Mutex
	guards    map[string]Guard
	providers map[string]UserProvider
	brokers   map[string]*Broker
}

// NewManager creates a manager over cfg.
func NewManager(cfg Config, opts ManagerOptions) *Manager {
	if opts.Store == nil {
		opts.Store = cache.NewMemoryStore()
	}
	return &Manager{
		cfg:       cfg,
		opts:      opts,
		guards:    make(map[string]Guard),
		providers: make(map[string]UserProvider),
		brokers:   make(map[string]*Broker),
	}
}

// Config returns the configuration the manager was built with.
func (m *Manager) Config() Config { return m.cfg }

// GuardNames lists configured guards, sorted.
func (m *Manager) GuardNames() []string {
	names := make([]string, 0, len(m.cfg.Guards))
	for name := range m.cfg.Guards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Guard returns the named guard. An empty name selects the default guard.
func (m *Manager) Guard(name string) (Guard, error) {
	if name == "" {
		name = m.cfg.Defaults.Guard
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if g, ok := m.guards[name]; ok {
		return g, nil
	}

	gc, ok := m.cfg.Guards[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGuard, name)
	}

	var g Guard
	switch gc.Driver {
	case DriverSession:
		g = NewSessionGuard(name, SessionOptions{
			Secret: m.opts.Secret,
			TTL:    m.opts.SessionTTL,
			Secure: m.opts.Secure,
		})
	case DriverJWT:
		g = NewJWTGuard(name, JWTOptions{Secret: m.opts.Secret, TTL: m.opts.TokenTTL})
	default:
		return nil, fmt.Errorf("%w: guard %q uses %q", ErrUnsupportedDriver, name, gc.Driver)
	}

	m.guards[name] = g
	return g, nil
}

// Provider returns the named user provider.
func (m *Manager) Provider(name string) (UserProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.providerLocked(name)
}

func (m *Manager) providerLocked(name string) (UserProvider, error) {
	if p, ok := m.providers[name]; ok {
		return p, nil
	}

	pc, ok := m.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if pc.Driver != DriverGorm {
		return nil, fmt.Errorf("%w: provider %q uses %q", ErrUnsupportedDriver, name, pc.Driver)
	}
	if pc.Model != "" && pc.Model != UserModel {
		return nil, fmt.Errorf("%w: provider %q model %q", ErrUnsupportedDriver, name, pc.Model)
	}

	p := NewGormProvider(m.opts.DB)
	m.providers[name] = p
	return p, nil
}

// GuardProvider returns the provider behind the named guard.
func (m *Manager) GuardProvider(guard string) (UserProvider, error) {
	if guard == "" {
		guard = m.cfg.Defaults.Guard
	}
	gc, ok := m.cfg.Guards[guard]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGuard, guard)
	}
	return m.Provider(gc.Provider)
}

// Broker returns the named password broker. An empty name selects the
// default broker.
func (m *Manager) Broker(name string) (*Broker, error) {
	if name == "" {
		name = m.cfg.Defaults.Passwords
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.brokers[name]; ok {
		return b, nil
	}

	bc, ok := m.cfg.Passwords[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBroker, name)
	}

	p, err := m.providerLocked(bc.Provider)
	if err != nil {
		return nil, err
	}

	b := NewBroker(name, bc, p, m.opts.DB, m.opts.Store, m.opts.Notifier)
	m.brokers[name] = b
	return b, nil
}

// Brokers builds every configured broker.
func (m *Manager) Brokers() ([]*Broker, error) {
	names := make([]string, 0, len(m.cfg.Passwords))
	for name := range m.cfg.Passwords {
		names = append(names, name)
	}
	sort.Strings(names)

	brokers := make([]*Broker, 0, len(names))
	for _, name := range names {
		b, err := m.Broker(name)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, nil
}

// Attempt checks credentials against the guard's provider and logs the user
// in on success.
func (m *Manager) Attempt(c *fiber.Ctx, guardName, email, password string) (*User, error) {
	guard, err := m.Guard(guardName)
	if err != nil {
		return nil, err
	}
	provider, err := m.GuardProvider(guard.Name())
	if err != nil {
		return nil, err
	}

	user, err := provider.RetrieveByEmail(c.UserContext(), email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			m.debug("login failed", "guard", guard.Name(), "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !provider.ValidateCredentials(user, password) {
		m.debug("login failed", "guard", guard.Name(), "reason", "bad password")
		return nil, ErrInvalidCredentials
	}

	if err := guard.Login(c, user); err != nil {
		return nil, err
	}
	SetCurrentUser(c, user)
	return user, nil
}

// User resolves the authenticated user for the request through the guard.
func (m *Manager) User(c *fiber.Ctx, guardName string) (*User, error) {
	if user, ok := CurrentUser(c); ok {
		return user, nil
	}

	guard, err := m.Guard(guardName)
	if err != nil {
		return nil, err
	}

	id, ok := guard.ID(c)
	if !ok {
		return nil, ErrUnauthenticated
	}

	provider, err := m.GuardProvider(guard.Name())
	if err != nil {
		return nil, err
	}

	user, err := provider.RetrieveByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	SetCurrentUser(c, user)
	return user, nil
}

// Logout clears the guard's identity.
func (m *Manager) Logout(c *fiber.Ctx, guardName string) error {
	guard, err := m.Guard(guardName)
	if err != nil {
		return err
	}
	guard.Logout(c)
	c.Locals(userLocalsKey, nil)
	return nil
}

// Require returns middleware that rejects unauthenticated requests.
// Browsers are redirected to loginPath; API and htmx clients get 401.
func (m *Manager) Require(guardName, loginPath string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		_, err := m.User(c, guardName)
		if err == nil {
			return c.Next()
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return err
		}

		if c.Get("HX-Request") == "true" || loginPath == "" ||
			c.Accepts(fiber.MIMETextHTML, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		return c.Redirect(loginPath)
	}
}

// PruneResets deletes expired tokens across every broker.
func (m *Manager) PruneResets(ctx context.Context) (int64, error) {
	brokers, err := m.Brokers()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, b := range brokers {
		n, err := b.DeleteExpired(ctx)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (m *Manager) debug(msg string, keysAndValues ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Debug(msg, keysAndValues...)
	}
}
