// Package storage implements the filesystem disks configured under
// filesystems.disks: local directories and S3 buckets.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/karloscodes/backpack/config"
)

// Driver names.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

var (
	// ErrUnknownDisk is returned for disks missing from the configuration.
	ErrUnknownDisk = errors.New("storage: unknown disk")
	// ErrNotFound is returned when a file does not exist.
	ErrNotFound = errors.New("storage: file not found")
	// ErrInvalidPath is returned for paths escaping the disk root.
	ErrInvalidPath = errors.New("storage: invalid path")
)

// Disk stores files under slash separated paths.
type Disk interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
}

// Manager builds disks from configuration on first use.
type Manager struct {
	cfg config.Filesystems

	mu    sync.Mutex
	disks map[string]Disk
}

// NewManager creates a manager over cfg.
func NewManager(cfg config.Filesystems) *Manager {
	return &Manager{cfg: cfg, disks: make(map[string]Disk)}
}

// Names lists the configured disks, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.cfg.Disks))
	for name := range m.cfg.Disks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Disk returns the named disk. An empty name selects the default disk.
func (m *Manager) Disk(name string) (Disk, error) {
	if name == "" {
		name = m.cfg.Default
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.disks[name]; ok {
		return d, nil
	}

	dc, ok := m.cfg.Disks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDisk, name)
	}

	d, err := build(dc)
	if err != nil {
		return nil, fmt.Errorf("storage: disk %q: %w", name, err)
	}
	m.disks[name] = d
	return d, nil
}

// Set registers a ready-made disk under name.
func (m *Manager) Set(name string, d Disk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disks[name] = d
}

func build(dc config.Disk) (Disk, error) {
	switch dc.Driver {
	case DriverLocal:
		return NewLocalDisk(dc.Root, dc.URL)
	case DriverS3:
		return NewS3Disk(dc)
	default:
		return nil, fmt.Errorf("unsupported driver %q", dc.Driver)
	}
}
