package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/karloscodes/backpack/auth"
	"github.com/spf13/viper"
)

// CrudConfig is the backpack.crud section.
type CrudConfig struct {
	DefaultPageLength             int               `mapstructure:"default_page_length"`
	PageLengthMenu                []int             `mapstructure:"page_length_menu"`
	ShowTranslatableFieldIcon     bool              `mapstructure:"show_translatable_field_icon"`
	TranslatableFieldIconPosition string            `mapstructure:"translatable_field_icon_position"`
	Locales                       map[string]string `mapstructure:"locales"`
	UploadsDisk                   string            `mapstructure:"uploads_disk"`
	Operations                    OperationsConfig  `mapstructure:"operations"`
}

// OperationsConfig holds per-operation defaults.
type OperationsConfig struct {
	List   ListOperation `mapstructure:"list"`
	Create FormOperation `mapstructure:"create"`
	Update FormOperation `mapstructure:"update"`
	Show   ShowOperation `mapstructure:"show"`
}

type ListOperation struct {
	SearchableTable bool `mapstructure:"searchable_table"`
	ShowEntryCount  bool `mapstructure:"show_entry_count"`
}

type FormOperation struct {
	GroupedErrors     bool   `mapstructure:"grouped_errors"`
	InlineErrors      bool   `mapstructure:"inline_errors"`
	DefaultSaveAction string `mapstructure:"default_save_action"`
}

type ShowOperation struct {
	Timestamps bool `mapstructure:"timestamps"`
}

// BaseConfig is the backpack.base section.
type BaseConfig struct {
	ProjectName          string `mapstructure:"project_name"`
	HomeLink             string `mapstructure:"home_link"`
	RoutePrefix          string `mapstructure:"route_prefix"`
	WebMiddleware        string `mapstructure:"web_middleware"`
	SetupAuthRoutes      bool   `mapstructure:"setup_auth_routes"`
	SetupDashboardRoutes bool   `mapstructure:"setup_dashboard_routes"`
	Guard                string `mapstructure:"guard"`
	Passwords            string `mapstructure:"passwords"`
	UserModelFQN         string `mapstructure:"user_model_fqn"`
	RootDiskName         string `mapstructure:"root_disk_name"`
	Locale               string `mapstructure:"locale"`
	FallbackLocale       string `mapstructure:"fallback_locale"`
}

// Disk configures one storage disk.
type Disk struct {
	Driver       string `mapstructure:"driver" json:"driver"`
	Root         string `mapstructure:"root" json:"root,omitempty"`
	URL          string `mapstructure:"url" json:"url,omitempty"`
	Bucket       string `mapstructure:"bucket" json:"bucket,omitempty"`
	Region       string `mapstructure:"region" json:"region,omitempty"`
	Endpoint     string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	Key          string `mapstructure:"key" json:"-"`
	Secret       string `mapstructure:"secret" json:"-"`
	UsePathStyle bool   `mapstructure:"use_path_style" json:"use_path_style,omitempty"`
}

// Filesystems is the filesystems section.
type Filesystems struct {
	Default string          `mapstructure:"default"`
	Disks   map[string]Disk `mapstructure:"disks"`
}

func crudDefaults() map[string]any {
	return map[string]any{
		"default_page_length":              25,
		"page_length_menu":                 []int{10, 25, 50, 100},
		"show_translatable_field_icon":     true,
		"translatable_field_icon_position": "right",
		"locales":                          map[string]any{"en": "English"},
		"uploads_disk":                     "uploads",
		"operations": map[string]any{
			"list":   map[string]any{"searchable_table": true, "show_entry_count": true},
			"create": map[string]any{"grouped_errors": true, "inline_errors": true, "default_save_action": "save_and_back"},
			"update": map[string]any{"grouped_errors": true, "inline_errors": true, "default_save_action": "save_and_back"},
			"show":   map[string]any{"timestamps": true},
		},
	}
}

func baseDefaults() map[string]any {
	return map[string]any{
		"project_name":           "Backpack",
		"home_link":              "",
		"route_prefix":           "admin",
		"web_middleware":         "web",
		"setup_auth_routes":      true,
		"setup_dashboard_routes": true,
		"guard":                  auth.Name,
		"passwords":              auth.Name,
		"user_model_fqn":         auth.UserModel,
		"root_disk_name":         "root",
		"locale":                 "en",
		"fallback_locale":        "en",
	}
}

func filesystemDefaults(app *Config) map[string]any {
	return map[string]any{
		"default": "local",
		"disks": map[string]any{
			"local":   map[string]any{"driver": "local", "root": filepath.Join(app.DataDirectory, "app")},
			"uploads": map[string]any{"driver": "local", "root": filepath.Join(app.DataDirectory, "uploads"), "url": "/uploads"},
		},
	}
}

// section loads one config file from dir over defaults. The file is looked
// up by name with any extension viper understands; a missing file leaves
// the defaults in place. Keys from the file and from overrides win per key.
// Env vars PREFIX_KEY override scalar keys.
func section(dir, name, envPrefix string, defaults, overrides map[string]any, out any) error {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(name)
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: read %s: %w", name, err)
		}
	}

	if len(overrides) > 0 {
		if err := v.MergeConfigMap(overrides); err != nil {
			return fmt.Errorf("config: merge %s overrides: %w", name, err)
		}
	}

	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: unmarshal %s: %w", name, err)
	}
	return nil
}

// loadAuth reads the auth tree from dir. Without an auth file the
// application gets auth.DefaultConfig.
func loadAuth(dir string) (auth.Config, error) {
	v := viper.New()
	v.SetConfigName("auth")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return auth.DefaultConfig(), nil
		}
		return auth.Config{}, fmt.Errorf("config: read auth: %w", err)
	}

	var cfg auth.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return auth.Config{}, fmt.Errorf("config: unmarshal auth: %w", err)
	}
	return cfg, nil
}
