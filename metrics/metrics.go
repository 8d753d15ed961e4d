// Package metrics exposes Prometheus collectors for the admin panel.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the collectors.
type Config struct {
	Namespace   string
	ConstLabels prometheus.Labels
	Buckets     []float64
	// Registry defaults to a fresh registry so several panels can live
	// in one process.
	Registry *prometheus.Registry
}

// Option configures Config.
type Option func(*Config)

// WithNamespace sets the metric namespace. Default: "backpack".
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels adds labels to every metric.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry registers collectors on registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) { c.Registry = registry }
}

// Metrics holds the panel collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	crudOperations  *prometheus.CounterVec
	authAttempts    *prometheus.CounterVec
	passwordResets  *prometheus.CounterVec
	uploads         *prometheus.CounterVec
}

// New registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{Namespace: "backpack", Buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	factory := promauto.With(cfg.Registry)
	return &Metrics{
		registry: cfg.Registry,

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency.",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"method", "route"}),

		crudOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "crud_operations_total",
			Help:        "CRUD operations by entity, operation and result.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"entity", "operation", "result"}),

		authAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "auth_attempts_total",
			Help:        "Login attempts by guard and result.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"guard", "result"}),

		passwordResets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "password_resets_total",
			Help:        "Password reset events by broker and stage.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"broker", "stage"}),

		uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "uploads_total",
			Help:        "Files stored by disk and result.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"disk", "result"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request count and latency per named route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := c.Route().Name
		if route == "" {
			route = c.Route().Path
		}
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// CrudOperation counts one CRUD operation.
func (m *Metrics) CrudOperation(entity, operation string, err error) {
	m.crudOperations.WithLabelValues(entity, operation, result(err)).Inc()
}

// AuthAttempt counts one login attempt.
func (m *Metrics) AuthAttempt(guard string, err error) {
	m.authAttempts.WithLabelValues(guard, result(err)).Inc()
}

// PasswordReset counts a reset link being sent or a password being reset.
func (m *Metrics) PasswordReset(broker, stage string) {
	m.passwordResets.WithLabelValues(broker, stage).Inc()
}

// Upload counts one stored file.
func (m *Metrics) Upload(disk string, err error) {
	m.uploads.WithLabelValues(disk, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
