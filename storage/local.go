package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalDisk stores files in a directory.
type LocalDisk struct {
	root string
	url  string
}

// NewLocalDisk creates the root directory if needed.
func NewLocalDisk(root, url string) (*LocalDisk, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", ErrInvalidPath)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &LocalDisk{root: root, url: strings.TrimRight(url, "/")}, nil
}

// Root returns the disk directory.
func (d *LocalDisk) Root() string { return d.root }

// Put writes r to path, creating parent directories.
func (d *LocalDisk) Put(ctx context.Context, p string, r io.Reader, contentType string) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", p, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return fmt.Errorf("storage: write %s: %w", p, err)
	}
	return f.Close()
}

// Get opens path for reading.
func (d *LocalDisk) Get(ctx context.Context, p string) (io.ReadCloser, error) {
	full, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("storage: open %s: %w", p, err)
	}
	return f, nil
}

// Exists reports whether path is a file on the disk.
func (d *LocalDisk) Exists(ctx context.Context, p string) (bool, error) {
	full, err := d.resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Delete removes path. Missing files are not an error.
func (d *LocalDisk) Delete(ctx context.Context, p string) error {
	full, err := d.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

// URL returns the public URL of path, or "" when the disk has none.
func (d *LocalDisk) URL(p string) string {
	if d.url == "" {
		return ""
	}
	return d.url + "/" + strings.TrimLeft(path.Clean("/"+p), "/")
}

func (d *LocalDisk) resolve(p string) (string, error) {
	slashed := filepath.ToSlash(p)
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	clean := path.Clean("/" + slashed)
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}
