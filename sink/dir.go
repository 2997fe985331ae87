package sink

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/specialistvlad/condordag/internal/ctxlog"
)

// Dir is a Sink backed by a directory on the local filesystem.
type Dir struct {
	root string
	perm fs.FileMode
}

// NewDir returns a Sink rooted at root. An empty root means the current
// working directory.
func NewDir(root string) *Dir {
	return &Dir{root: root, perm: 0o644}
}

// Root returns the directory the sink resolves relative names against.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) path(name string) string {
	if filepath.IsAbs(name) || d.root == "" {
		return name
	}
	return filepath.Join(d.root, name)
}

// WriteFile writes data to a temporary sibling file and renames it into
// place, so readers never observe a partially written file.
func (d *Dir) WriteFile(ctx context.Context, name string, data []byte) error {
	logger := ctxlog.FromContext(ctx)
	target := d.path(name)

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
	}

	tmpPath := target + ".tmp"
	if err := os.WriteFile(tmpPath, data, d.perm); err != nil {
		return fmt.Errorf("failed to write temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file for %s: %w", name, err)
	}

	logger.Debug("File written.", "path", target, "bytes", len(data))
	return nil
}

// ReadFile reads the named file.
func (d *Dir) ReadFile(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether the named file exists.
func (d *Dir) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(d.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("error accessing %s: %w", name, err)
}
