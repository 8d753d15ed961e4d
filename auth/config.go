// Package auth holds the authentication configuration tree (providers,
// password brokers, guards) and the runtime guards, user provider and
// password broker built from it.
package auth

// Name is the key under which the admin panel registers its provider,
// broker and guard.
const Name = "backpack"

// Driver names understood by the Manager.
const (
	DriverGorm    = "gorm"
	DriverSession = "session"
	DriverJWT     = "jwt"
)

// DefaultResetTable is the table holding password reset tokens.
const DefaultResetTable = "password_resets"

// DefaultResetExpire is the reset token lifetime in minutes.
const DefaultResetExpire = 60

// ProviderConfig describes how users are retrieved.
type ProviderConfig struct {
	Driver string `mapstructure:"driver" json:"driver"`
	Model  string `mapstructure:"model" json:"model"`
}

// BrokerConfig describes a password reset broker.
type BrokerConfig struct {
	Provider string `mapstructure:"provider" json:"provider"`
	Table    string `mapstructure:"table" json:"table"`
	// Expire is the token lifetime in minutes.
	Expire int `mapstructure:"expire" json:"expire"`
	// Throttle is the minimum number of seconds between reset requests for
	// the same user. 0 falls back to 60.
	Throttle int `mapstructure:"throttle" json:"throttle,omitempty"`
}

// GuardConfig describes how a request is authenticated.
type GuardConfig struct {
	Driver   string `mapstructure:"driver" json:"driver"`
	Provider string `mapstructure:"provider" json:"provider"`
}

// Defaults names the guard and broker used when none is given.
type Defaults struct {
	Guard     string `mapstructure:"guard" json:"guard"`
	Passwords string `mapstructure:"passwords" json:"passwords"`
}

// Config is the auth configuration tree.
type Config struct {
	Defaults  Defaults                  `mapstructure:"defaults" json:"defaults"`
	Providers map[string]ProviderConfig `mapstructure:"providers" json:"providers"`
	Passwords map[string]BrokerConfig   `mapstructure:"passwords" json:"passwords"`
	Guards    map[string]GuardConfig    `mapstructure:"guards" json:"guards"`
}

// DefaultConfig is the application tree before the admin panel adds its
// entries: a "web" session guard over a "users" gorm provider.
func DefaultConfig() Config {
	return Config{
		Defaults: Defaults{Guard: "web", Passwords: "users"},
		Providers: map[string]ProviderConfig{
			"users": {Driver: DriverGorm, Model: UserModel},
		},
		Passwords: map[string]BrokerConfig{
			"users": {Provider: "users", Table: DefaultResetTable, Expire: DefaultResetExpire},
		},
		Guards: map[string]GuardConfig{
			"web": {Driver: DriverSession, Provider: "users"},
		},
	}
}

// WithBackpack returns base with a "backpack" provider, broker and guard
// added. Entries already present in base win; base is not modified.
// The shape of the added entries is not validated.
func WithBackpack(base Config, userModel string) Config {
	return Config{
		Defaults: base.Defaults,
		Providers: union(base.Providers, map[string]ProviderConfig{
			Name: {Driver: DriverGorm, Model: userModel},
		}),
		Passwords: union(base.Passwords, map[string]BrokerConfig{
			Name: {Provider: Name, Table: DefaultResetTable, Expire: DefaultResetExpire},
		}),
		Guards: union(base.Guards, map[string]GuardConfig{
			Name: {Driver: DriverSession, Provider: Name},
		}),
	}
}

// union returns a new map holding every entry of base plus the entries of
// extra whose keys base lacks.
func union[V any](base, extra map[string]V) map[string]V {
	out := make(map[string]V, len(base)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range base {
		out[k] = v
	}
	return out
}
