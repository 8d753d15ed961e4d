// Package config loads the application settings from the environment and
// assembles the admin panel configuration (backpack.crud, backpack.base,
// filesystems, auth) into one immutable value.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Environment constants.
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Cache drivers back login and reset throttling.
const (
	CacheMemory   = "memory"
	CacheDatabase = "database"
)

// Config holds the process-level settings read from the environment.
type Config struct {
	// AppName is the application name, used for env var prefix and database filename.
	AppName string `mapstructure:"appname"`

	// Environment: development, production, or test.
	Environment string `mapstructure:"environment"`

	// Port for the HTTP server.
	Port string `mapstructure:"port"`

	// Debug enables debug mode.
	Debug bool `mapstructure:"debug"`

	// BasePath is the project root. The root disk points here.
	BasePath string `mapstructure:"basepath"`

	// ResourcesPath holds views/ and lang/ overrides.
	ResourcesPath string `mapstructure:"resourcespath"`

	// ConfigDirectory holds backpack/crud.*, backpack/base.*, auth.* and filesystems.*.
	ConfigDirectory string `mapstructure:"configdirectory"`

	// PublicDirectory is served under AssetsPrefix.
	PublicDirectory string `mapstructure:"publicdirectory"`
	AssetsPrefix    string `mapstructure:"assetsprefix"`

	// Logging configuration.
	LogLevel       string `mapstructure:"loglevel"`
	LogsDirectory  string `mapstructure:"logsdirectory"`
	LogsMaxSizeMB  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeDays int    `mapstructure:"logsmaxageindays"`

	// Session configuration.
	SessionSecret  string `mapstructure:"sessionsecret"`
	SessionTimeout int    `mapstructure:"sessiontimeoutseconds"`

	// Data and database configuration.
	DataDirectory    string `mapstructure:"datadirectory"`
	DatabaseDriver   string `mapstructure:"databasedriver"`
	DatabaseURL      string `mapstructure:"databasedsn"`
	DatabaseFilename string `mapstructure:"databasefilename"`
	DatabasePath     string `mapstructure:"-"`
	MaxOpenConns     int    `mapstructure:"databasemaxopenconns"`
	MaxIdleConns     int    `mapstructure:"databasemaxidleconns"`

	// Write concurrency for CRUD mutations.
	MaxConcurrentWrites int `mapstructure:"maxconcurrentwrites"`

	// CacheDriver is memory or database. Use database when several
	// processes serve the same panel.
	CacheDriver string `mapstructure:"cachedriver"`

	envPrefix string
}

// Load creates a new Config for the given app name.
// It reads from environment variables prefixed with the uppercase app name.
// Example: Load("shop") reads SHOP_ENV, SHOP_PORT, SHOP_BASE_PATH, etc.
func Load(appName string) (*Config, error) {
	v := viper.New()

	appName = strings.ToLower(strings.TrimSpace(appName))
	if appName == "" {
		appName = "backpack"
	}
	prefix := strings.ToUpper(appName)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	setDefaults(v, appName)

	v.SetEnvPrefix(prefix)
	bindEnvVars(v, prefix)

	cfg := &Config{envPrefix: prefix}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.DatabasePath = cfg.resolveDatabasePath()
	cfg.ensureDirectories()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, appName string) {
	v.SetDefault("appname", appName)
	v.SetDefault("environment", Production)
	v.SetDefault("port", "8080")
	v.SetDefault("debug", false)

	v.SetDefault("basepath", ".")
	v.SetDefault("resourcespath", "resources")
	v.SetDefault("configdirectory", "config")
	v.SetDefault("publicdirectory", "public")
	v.SetDefault("assetsprefix", "/assets")

	v.SetDefault("loglevel", "error")
	v.SetDefault("logsdirectory", "storage/logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)

	v.SetDefault("sessiontimeoutseconds", 604800) // 1 week

	v.SetDefault("datadirectory", "storage")
	v.SetDefault("databasedriver", DriverSQLite)
	v.SetDefault("databasefilename", appName+".db")
	v.SetDefault("databasemaxopenconns", 0)
	v.SetDefault("databasemaxidleconns", 0)

	v.SetDefault("maxconcurrentwrites", 1)
	v.SetDefault("cachedriver", CacheMemory)
}

func bindEnvVars(v *viper.Viper, prefix string) {
	v.BindEnv("environment", prefix+"_ENV")
	v.BindEnv("port", prefix+"_PORT")
	v.BindEnv("sessionsecret", prefix+"_SESSION_SECRET")
	v.BindEnv("loglevel", prefix+"_LOG_LEVEL")
	v.BindEnv("datadirectory", prefix+"_DATA_DIR")
	v.BindEnv("logsdirectory", prefix+"_LOGS_DIR")
	v.BindEnv("debug", prefix+"_DEBUG")
	v.BindEnv("sessiontimeoutseconds", prefix+"_SESSION_TIMEOUT")
	v.BindEnv("basepath", prefix+"_BASE_PATH")
	v.BindEnv("resourcespath", prefix+"_RESOURCES_PATH")
	v.BindEnv("configdirectory", prefix+"_CONFIG_DIR")
	v.BindEnv("databasedriver", prefix+"_DATABASE_DRIVER")
	v.BindEnv("databasedsn", prefix+"_DATABASE_DSN")
	v.BindEnv("maxconcurrentwrites", prefix+"_MAX_CONCURRENT_WRITES")
	v.BindEnv("cachedriver", prefix+"_CACHE_DRIVER")
}

func (c *Config) validate() error {
	var problems []string

	if c.LogLevel == "" || c.LogLevel == "error" {
		if c.IsDevelopment() || c.IsTest() {
			c.LogLevel = "info"
		}
	}

	if c.IsProduction() {
		if c.SessionSecret == "" {
			problems = append(problems, fmt.Sprintf("%s_SESSION_SECRET is REQUIRED in production", c.envPrefix))
		}
	} else if c.SessionSecret == "" {
		c.SessionSecret = "dev-secret-do-not-use-in-production-7c41d9e0b2a8f365"
		if c.IsDevelopment() {
			log.Printf("info: Using default development secret (set %s_SESSION_SECRET for custom value)", c.envPrefix)
		}
	}

	switch c.Environment {
	case Development, Production, Test:
	default:
		problems = append(problems, fmt.Sprintf("invalid %s_ENV value %q", c.envPrefix, c.Environment))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, fmt.Sprintf("%s_DATABASE_DSN is REQUIRED for postgres", c.envPrefix))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid %s_DATABASE_DRIVER value %q", c.envPrefix, c.DatabaseDriver))
	}

	switch c.CacheDriver {
	case "", CacheMemory, CacheDatabase:
	default:
		problems = append(problems, fmt.Sprintf("invalid %s_CACHE_DRIVER value %q", c.envPrefix, c.CacheDriver))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) resolveDatabasePath() string {
	filename := c.DatabaseFilename
	if filename == "" {
		filename = c.AppName + ".db"
	}

	// app.development.db, app.test.db, app.production.db
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if ext == "" {
		ext = ".db"
	}
	filename = fmt.Sprintf("%s.%s%s", base, c.Environment, ext)

	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(c.DataDirectory, filename)
}

func (c *Config) ensureDirectories() {
	for _, dir := range []string{c.DataDirectory, c.LogsDirectory} {
		if dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				log.Printf("config: failed to create directory %q: %v", dir, err)
			}
		}
	}
}

// Environment checks.

func (c *Config) IsDevelopment() bool { return c.Environment == Development }
func (c *Config) IsProduction() bool  { return c.Environment == Production }
func (c *Config) IsTest() bool        { return c.Environment == Test }

// Server interface implementations.

func (c *Config) GetPort() string            { return c.Port }
func (c *Config) GetPublicDirectory() string { return c.PublicDirectory }
func (c *Config) GetAssetsPrefix() string    { return c.AssetsPrefix }

// Log configuration.

func (c *Config) GetLogLevel() string     { return c.LogLevel }
func (c *Config) GetLogDirectory() string { return c.LogsDirectory }
func (c *Config) GetLogMaxSizeMB() int    { return c.LogsMaxSizeMB }
func (c *Config) GetLogMaxBackups() int   { return c.LogsMaxBackups }
func (c *Config) GetLogMaxAgeDays() int   { return c.LogsMaxAgeDays }
func (c *Config) GetAppName() string      { return c.AppName }

// Database configuration.

// DatabaseDSN returns the postgres URL, or the sqlite file path.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

func (c *Config) GetMaxOpenConns() int {
	if c.MaxOpenConns > 0 {
		return c.MaxOpenConns
	}
	if c.IsProduction() {
		return 10
	}
	return 1
}

func (c *Config) GetMaxIdleConns() int {
	if c.MaxIdleConns > 0 {
		return c.MaxIdleConns
	}
	if c.IsProduction() {
		return 5
	}
	return 1
}

// GetSessionSecret returns the session secret.
func (c *Config) GetSessionSecret() string { return c.SessionSecret }

// GetSessionTimeout returns session timeout in seconds.
func (c *Config) GetSessionTimeout() int { return c.SessionTimeout }
