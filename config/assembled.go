package config

import (
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/karloscodes/backpack/auth"
)

// Assembled is the admin panel configuration, built once at startup by
// Assemble. It is read-only: accessors return copies.
type Assembled struct {
	app         *Config
	crud        CrudConfig
	base        BaseConfig
	filesystems Filesystems
	auth        auth.Config
}

// Option adjusts assembly. Overrides have the same precedence as values from
// config files.
type Option func(*assembleOptions)

type assembleOptions struct {
	crud  map[string]any
	base  map[string]any
	disks map[string]Disk
	auth  *auth.Config
}

// WithCrud overrides backpack.crud keys.
func WithCrud(values map[string]any) Option {
	return func(o *assembleOptions) { o.crud = values }
}

// WithBase overrides backpack.base keys.
func WithBase(values map[string]any) Option {
	return func(o *assembleOptions) { o.base = values }
}

// WithDisk adds or replaces a disk before the root disk is assigned.
func WithDisk(name string, disk Disk) Option {
	return func(o *assembleOptions) {
		if o.disks == nil {
			o.disks = make(map[string]Disk)
		}
		o.disks[name] = disk
	}
}

// WithAuth replaces the application auth tree that the backpack entries
// are merged into.
func WithAuth(cfg auth.Config) Option {
	return func(o *assembleOptions) { o.auth = &cfg }
}

// Assemble loads backpack.crud and backpack.base over the package defaults,
// assigns the root disk to the project base path and merges the backpack
// provider, broker and guard into the auth tree.
func Assemble(app *Config, opts ...Option) (*Assembled, error) {
	var o assembleOptions
	for _, opt := range opts {
		opt(&o)
	}

	dir := app.ConfigDirectory
	prefix := app.envPrefix
	if prefix == "" {
		prefix = "BACKPACK"
	}

	var crud CrudConfig
	if err := section(filepath.Join(dir, "backpack"), "crud", prefix+"_BACKPACK_CRUD", crudDefaults(), o.crud, &crud); err != nil {
		return nil, err
	}

	var base BaseConfig
	if err := section(filepath.Join(dir, "backpack"), "base", prefix+"_BACKPACK_BASE", baseDefaults(), o.base, &base); err != nil {
		return nil, err
	}

	var fs Filesystems
	if err := section(dir, "filesystems", "", filesystemDefaults(app), nil, &fs); err != nil {
		return nil, err
	}
	if fs.Disks == nil {
		fs.Disks = make(map[string]Disk)
	}
	for name, disk := range o.disks {
		fs.Disks[name] = disk
	}

	if base.RootDiskName == "" {
		return nil, fmt.Errorf("config: backpack.base.root_disk_name is empty")
	}
	basePath, err := filepath.Abs(app.BasePath)
	if err != nil {
		return nil, fmt.Errorf("config: resolve base path: %w", err)
	}
	fs.Disks[base.RootDiskName] = Disk{Driver: "local", Root: basePath}

	authCfg := auth.DefaultConfig()
	if o.auth != nil {
		authCfg = *o.auth
	} else if authCfg, err = loadAuth(dir); err != nil {
		return nil, err
	}

	return &Assembled{
		app:         app,
		crud:        crud,
		base:        base,
		filesystems: fs,
		auth:        auth.WithBackpack(authCfg, base.UserModelFQN),
	}, nil
}

// App returns the process settings.
func (a *Assembled) App() *Config { return a.app }

// Crud returns backpack.crud.
func (a *Assembled) Crud() CrudConfig {
	c := a.crud
	c.PageLengthMenu = append([]int(nil), a.crud.PageLengthMenu...)
	c.Locales = maps.Clone(a.crud.Locales)
	return c
}

// Base returns backpack.base.
func (a *Assembled) Base() BaseConfig { return a.base }

// Filesystems returns the filesystem disks including the root disk.
func (a *Assembled) Filesystems() Filesystems {
	return Filesystems{Default: a.filesystems.Default, Disks: maps.Clone(a.filesystems.Disks)}
}

// Disk returns the named disk.
func (a *Assembled) Disk(name string) (Disk, bool) {
	d, ok := a.filesystems.Disks[name]
	return d, ok
}

// Auth returns the merged auth tree.
func (a *Assembled) Auth() auth.Config {
	return auth.Config{
		Defaults:  a.auth.Defaults,
		Providers: maps.Clone(a.auth.Providers),
		Passwords: maps.Clone(a.auth.Passwords),
		Guards:    maps.Clone(a.auth.Guards),
	}
}

// RoutePrefix returns the admin path prefix with a leading slash.
func (a *Assembled) RoutePrefix() string {
	prefix := strings.Trim(a.base.RoutePrefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}
