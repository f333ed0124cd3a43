package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Dir is a Vault rooted at a directory on the local filesystem.
// Writes go to a temp file in the same directory and are renamed into place.
type Dir struct {
	root  string
	permF os.FileMode
	permD os.FileMode
}

// NewDir creates a filesystem vault rooted at root, creating it if needed.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	return &Dir{root: root, permF: 0o644, permD: 0o755}, nil
}

// Root returns the directory the vault is rooted at.
func (d *Dir) Root() string { return d.root }

// Abs maps a vault path to a filesystem path.
func (d *Dir) Abs(p string) (string, error) {
	c, err := Clean(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(c)), nil
}

func (d *Dir) Read(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := d.Abs(p)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Dir) Write(ctx context.Context, p, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := d.Abs(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, d.permD); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, d.permF)

	if _, err := tmp.WriteString(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	_ = syncDir(dir)
	return nil
}

func (d *Dir) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := d.Abs(p)
	if err != nil {
		return err
	}
	err = os.Remove(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, ErrNotExist)
	}
	return err
}

func (d *Dir) MkdirAll(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := d.Abs(p)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, d.permD)
}

func (d *Dir) List(ctx context.Context, folder string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := d.Abs(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	clean, _ := Clean(folder)
	var out []string
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		out = append(out, path.Join(clean, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// syncDir best-effort fsyncs a directory so the rename survives a crash.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
