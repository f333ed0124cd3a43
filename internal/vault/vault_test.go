package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newVaults(t *testing.T) map[string]Vault {
	t.Helper()
	dir, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("dir vault: %v", err)
	}
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "vault.db"))
	if err != nil {
		t.Fatalf("sqlite vault: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Vault{"dir": dir, "sqlite": sq, "memory": NewMemory()}
}

func TestVaultReadWrite(t *testing.T) {
	ctx := context.Background()
	for name, v := range newVaults(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Read(ctx, "annotations/A.annotations.md"); !errors.Is(err, ErrNotExist) {
				t.Fatalf("expected ErrNotExist, got %v", err)
			}
			if err := v.MkdirAll(ctx, "annotations"); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := v.MkdirAll(ctx, "annotations"); err != nil {
				t.Fatalf("second mkdir should succeed: %v", err)
			}
			if err := v.Write(ctx, "annotations/A.annotations.md", "one"); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := v.Write(ctx, "annotations/A.annotations.md", "two"); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := v.Read(ctx, "annotations/A.annotations.md")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got != "two" {
				t.Errorf("expected 'two', got %q", got)
			}
		})
	}
}

func TestVaultDeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, v := range newVaults(t) {
		t.Run(name, func(t *testing.T) {
			v.MkdirAll(ctx, "annotations")
			v.Write(ctx, "annotations/b.md", "b")
			v.Write(ctx, "annotations/a.md", "a")
			v.Write(ctx, "annotations/sub/c.md", "c")
			v.Write(ctx, "other/d.md", "d")

			list, err := v.List(ctx, "annotations")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 2 || list[0] != "annotations/a.md" || list[1] != "annotations/b.md" {
				t.Errorf("unexpected list %v", list)
			}

			if err := v.Delete(ctx, "annotations/a.md"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := v.Delete(ctx, "annotations/a.md"); !errors.Is(err, ErrNotExist) {
				t.Errorf("expected ErrNotExist on second delete, got %v", err)
			}
			list, _ = v.List(ctx, "annotations")
			if len(list) != 1 {
				t.Errorf("expected 1 blob after delete, got %v", list)
			}

			empty, err := v.List(ctx, "missing")
			if err != nil || len(empty) != 0 {
				t.Errorf("expected empty list for missing folder, got %v, %v", empty, err)
			}
		})
	}
}

func TestVaultRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	for name, v := range newVaults(t) {
		t.Run(name, func(t *testing.T) {
			for _, p := range []string{"../x.md", "/etc/passwd", "a/../../x.md", ""} {
				if err := v.Write(ctx, p, "x"); !errors.Is(err, ErrPathInvalid) {
					t.Errorf("%q: expected ErrPathInvalid, got %v", p, err)
				}
			}
		})
	}
}

func TestDirWriteLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	d, _ := NewDir(root)
	for i := 0; i < 3; i++ {
		if err := d.Write(ctx, "annotations/A.md", "data"); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(root, "annotations"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the blob, found %d entries", len(entries))
	}
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sub", "vault.db")
	s, err := NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Write(ctx, "annotations/A.md", "persisted")
	s.Close()

	s, err = NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Read(ctx, "annotations/A.md")
	if err != nil || got != "persisted" {
		t.Errorf("expected persisted blob, got %q, %v", got, err)
	}
}
